package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRateUnavailable   = errors.New("exchange rates unavailable")
	ErrConflict          = errors.New("concurrent modification, retry the operation")
)
