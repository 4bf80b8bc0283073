package domain

import (
	"github.com/shopspring/decimal"
)

// ExecutorTypeArbitrage is the execution type tag written by the two-leg
// arbitrage execution subsystem. The position aggregator only ever looks
// at records of this type.
const ExecutorTypeArbitrage = "arbitrage_executor"

// CloseType encodes the outcome of a finished executor. The numeric
// values are fixed by convention with the execution subsystem and must
// not be renumbered.
type CloseType int

const (
	CloseTypeFailed        CloseType = 8  // both legs failed, zero fill
	CloseTypeCompleted     CloseType = 9  // both legs filled
	CloseTypeOneSideFailed CloseType = 11 // one leg filled, other failed
)

// SuccessfulCloseTypes is the set of outcomes that contribute executed
// size to a position: fully completed, or half-failed with a partial fill.
var SuccessfulCloseTypes = []CloseType{CloseTypeCompleted, CloseTypeOneSideFailed}

// ExecutorStatus is the runnable state of an executor.
type ExecutorStatus int

const (
	ExecutorNotStarted   ExecutorStatus = 1
	ExecutorRunning      ExecutorStatus = 2
	ExecutorShuttingDown ExecutorStatus = 3
	ExecutorTerminated   ExecutorStatus = 4
)

// ExecutorRecord is one recorded attempt to execute a two-leg (buy+sell)
// arbitrage order. Records are written by the execution subsystem and are
// immutable once CloseTimestamp is set; this core only ever reads them.
//
// The buy and sell legs may sit on the same market (same-exchange quote
// arbitrage) or different markets (cross-exchange).
type ExecutorRecord struct {
	ID             string
	Timestamp      int64
	Type           string
	CloseType      *CloseType
	CloseTimestamp *int64
	Status         ExecutorStatus
	ControllerID   string

	BuyMarket  string
	BuyPair    string
	SellMarket string
	SellPair   string

	BuyExecutedSize  decimal.Decimal
	BuyAvgPrice      decimal.Decimal
	SellExecutedSize decimal.Decimal
	SellAvgPrice     decimal.Decimal

	CumFeesQuote decimal.Decimal
	NetPnLQuote  decimal.Decimal
}

// IsDone reports whether the executor has reached a terminal outcome.
func (e ExecutorRecord) IsDone() bool {
	return e.Status == ExecutorTerminated || e.CloseTimestamp != nil
}

// Succeeded reports whether the close outcome contributes executed size
// (fully completed or half-failed with a partial fill).
func (e ExecutorRecord) Succeeded() bool {
	if e.CloseType == nil {
		return false
	}
	for _, ct := range SuccessfulCloseTypes {
		if *e.CloseType == ct {
			return true
		}
	}
	return false
}

// BuyLeg returns the buy-side connector pair.
func (e ExecutorRecord) BuyLeg() ConnectorPair {
	return ConnectorPair{Market: e.BuyMarket, Pair: e.BuyPair}
}

// SellLeg returns the sell-side connector pair.
func (e ExecutorRecord) SellLeg() ConnectorPair {
	return ConnectorPair{Market: e.SellMarket, Pair: e.SellPair}
}
