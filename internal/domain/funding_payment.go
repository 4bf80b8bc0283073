package domain

import (
	"github.com/shopspring/decimal"
)

// FundingPayment is one funding-fee settlement recorded by the external
// execution subsystem for a single connector pair. Amount is
// quote-denominated and positive when the account received the payment.
// TradeID is nil until the payment has been attributed to the funding
// trade whose window owns its timestamp.
type FundingPayment struct {
	ID        string
	Timestamp int64
	Market    string
	Pair      string
	Amount    decimal.Decimal
	TradeID   *string
}

// Attributed reports whether the payment has been assigned to a trade.
func (fp FundingPayment) Attributed() bool {
	return fp.TradeID != nil
}
