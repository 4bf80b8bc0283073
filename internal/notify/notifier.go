// Package notify delivers trade lifecycle notifications (trade_opened,
// executor_failed, trade_closed, ...) to one or more channels (Telegram,
// Discord). Events can be filtered by type so operators receive only the
// alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warkittens-chef/fundingarb/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one event, rendered in the channel's own markup.
	Send(ctx context.Context, e Event) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier builds trade lifecycle events and dispatches them to its
// senders. It maintains a set of allowed event types; events of other
// types are dropped before dispatch.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
// Only events whose type appears in the events slice will be forwarded.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// TradeOpened announces that the controller started scaling into a new
// funding trade.
func (n *Notifier) TradeOpened(ctx context.Context, long, short domain.ConnectorPair, projectedAPR decimal.Decimal) error {
	return n.dispatch(ctx, Event{
		Type:  EventTradeOpened,
		Title: "Scaling into new trade",
		Fields: []Field{
			{Key: "long", Value: long.String()},
			{Key: "short", Value: short.String()},
			{Key: "projected APR", Value: pct(projectedAPR)},
		},
	})
}

// TradeUnwinding announces that projected revenue decayed below the exit
// threshold and the trade is being scaled out.
func (n *Notifier) TradeUnwinding(ctx context.Context, tradeID string, projectedAPR decimal.Decimal) error {
	return n.dispatch(ctx, Event{
		Type:  EventTradeUnwinding,
		Title: "Scaling out of trade",
		Fields: []Field{
			{Key: "funding trade", Value: tradeID},
			{Key: "projected APR", Value: pct(projectedAPR)},
		},
	})
}

// TradeSwapping announces a swap from the outgoing trade to a better
// candidate.
func (n *Notifier) TradeSwapping(ctx context.Context, outgoingID string, long, short domain.ConnectorPair, improvement decimal.Decimal) error {
	return n.dispatch(ctx, Event{
		Type:  EventTradeSwapping,
		Title: "Swapping to better trade",
		Fields: []Field{
			{Key: "outgoing", Value: outgoingID},
			{Key: "incoming long", Value: long.String()},
			{Key: "incoming short", Value: short.String()},
			{Key: "APR improvement", Value: pct(improvement)},
		},
	})
}

// TradeClosed announces a fully unwound trade together with its realized
// PnL components.
func (n *Notifier) TradeClosed(ctx context.Context, tradeID string, tradingFees, priceGaps, fundingFees decimal.Decimal, failures int) error {
	return n.dispatch(ctx, Event{
		Type:  EventTradeClosed,
		Title: "Trade fully closed",
		Fields: []Field{
			{Key: "funding trade", Value: tradeID},
			{Key: "trading fees", Value: quote(tradingFees)},
			{Key: "price gaps", Value: quote(priceGaps)},
			{Key: "funding", Value: quote(fundingFees)},
			{Key: "failed executors", Value: strconv.Itoa(failures)},
		},
	})
}

// ExecutorFailed announces an executor that closed with any outcome
// other than fully completed.
func (n *Notifier) ExecutorFailed(ctx context.Context, tradeID, executorID string, closeType int, buy, sell domain.ConnectorPair) error {
	return n.dispatch(ctx, Event{
		Type:  EventExecutorFailed,
		Title: "Executor closed abnormally",
		Fields: []Field{
			{Key: "funding trade", Value: tradeID},
			{Key: "executor", Value: executorID},
			{Key: "close type", Value: strconv.Itoa(closeType)},
			{Key: "buy leg", Value: buy.String()},
			{Key: "sell leg", Value: sell.String()},
		},
	})
}

// FundingPayment announces a funding payment accrued against a trade.
func (n *Notifier) FundingPayment(ctx context.Context, tradeID string, amount decimal.Decimal) error {
	return n.dispatch(ctx, Event{
		Type:  EventFundingPayment,
		Title: "Funding payment accrued",
		Fields: []Field{
			{Key: "funding trade", Value: tradeID},
			{Key: "amount", Value: quote(amount)},
		},
	})
}

// dispatch filters the event and sends it to every sender. Errors from
// individual senders are collected and returned as a combined error; a
// single sender failure does not prevent delivery to the remaining
// senders.
func (n *Notifier) dispatch(ctx context.Context, e Event) error {
	if len(n.events) > 0 && !n.events[e.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", e.Type),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, e); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", e.Type),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("event", e.Type),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
