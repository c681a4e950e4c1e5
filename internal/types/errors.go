package types

import "errors"

// Domain error taxonomy. Precondition failures are reported synchronously to
// the caller and never retried; external-dependency failures are recorded on
// the order's execution history and retried on the next due tick.
var (
	// Admin / store errors
	ErrInvalidParameters = errors.New("invalid order parameters")
	ErrUnauthorized      = errors.New("caller is not the order owner")
	ErrNotFound          = errors.New("order not found")
	ErrOrderCancelled    = errors.New("order is cancelled")
	ErrAlreadyTerminal   = errors.New("order is already in a terminal state")
	ErrNotCancelled      = errors.New("order must be cancelled before withdrawal")

	// Execution precondition errors
	ErrInactive           = errors.New("order is not active")
	ErrNotDue             = errors.New("order is not due for execution")
	ErrInsufficientBudget = errors.New("remaining budget is below the tranche amount")

	// External-dependency errors
	ErrQuoteUnavailable = errors.New("exchange cannot quote the pair")
	ErrSwapFailed       = errors.New("swap rejected by the exchange")

	// Custody errors
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)
