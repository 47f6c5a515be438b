package ledger

import "errors"

var (
	// ErrInsufficientFunds is returned by Buy when the cost exceeds the cash balance
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientShares is returned by Sell when selling more than is held
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrUnknownInstrument is returned by Sell for an instrument with no holding
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrInvalidTrade is returned for non-positive shares or price
	ErrInvalidTrade = errors.New("shares and price must be positive")
	// ErrInvalidAmount is returned for a non-positive deposit or withdrawal
	ErrInvalidAmount = errors.New("amount must be positive")
)
