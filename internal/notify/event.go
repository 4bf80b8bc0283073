package notify

import (
	"github.com/shopspring/decimal"
)

// Event type names form the operator-facing taxonomy of trade lifecycle
// notifications. The notify.events config list filters on these.
const (
	EventTradeOpened    = "trade_opened"
	EventTradeUnwinding = "trade_unwinding"
	EventTradeSwapping  = "trade_swapping"
	EventTradeClosed    = "trade_closed"
	EventExecutorFailed = "executor_failed"
	EventFundingPayment = "funding_payment"
)

// Event is one notification ready for delivery: a type for filtering, a
// short title, and ordered detail fields. Each sender renders the fields
// in its own markup.
type Event struct {
	Type   string
	Title  string
	Fields []Field
}

// Field is one detail line of an event.
type Field struct {
	Key   string
	Value string
}

// pct renders an annualized fraction as a percentage, 0.219 -> "21.90%".
func pct(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// quote renders a quote-denominated amount.
func quote(d decimal.Decimal) string {
	return d.StringFixed(4)
}
