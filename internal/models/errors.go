package models

import "github.com/pkg/errors"

var (
	ErrMalformedData      = errors.New("malformed market data")
	ErrStaleData          = errors.New("stale market data")
	ErrInvariantViolation = errors.New("ledger invariant violation")
	ErrRiskLimitExceeded  = errors.New("risk limit exceeded")
	ErrTimeout            = errors.New("exchange timeout")
	ErrTransportFailure   = errors.New("exchange transport failure")
	ErrRejectedByExchange = errors.New("rejected by exchange")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyTerminal    = errors.New("order already terminal")
	ErrInstrumentHalted   = errors.New("instrument halted")
	ErrUnknownStrategy    = errors.New("unknown strategy kind")
)
