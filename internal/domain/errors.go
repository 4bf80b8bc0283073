package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidSide        = errors.New("side must be 'long' or 'short'")
	ErrTradeOverlap       = errors.New("multiple funding trades match one window")
	ErrTradeClosed        = errors.New("funding trade already closed")
	ErrAlreadyAttributed  = errors.New("funding payment already attributed")
	ErrOrderInFlight      = errors.New("an order is already in flight for this trade")
	ErrAllocationExceeded = errors.New("allocation cap would be exceeded")
)
