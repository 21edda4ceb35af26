package service

import "errors"

var (
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrAlreadyAuthenticated  = errors.New("already authenticated")
	ErrCapabilityUnavailable = errors.New("this device does not support passkeys")
	ErrAuthInProgress        = errors.New("an authentication ceremony is already in progress")
	ErrAccountNotFound       = errors.New("account not found")
	ErrCredentialRejected    = errors.New("credential response did not match the issued challenge")
	ErrSessionChanged        = errors.New("session changed while authenticating")
	ErrAccountChanged        = errors.New("payment belongs to a different account")
	ErrInsufficientFunds     = errors.New("insufficient funds")

	ErrSubmissionInFlight = errors.New("a submission for this payment is still in flight")
	ErrInvalidTransition  = errors.New("operation not allowed in the current state")
	ErrNoActivePayment    = errors.New("no active payment")
	ErrCancelNotAllowed   = errors.New("payment can no longer be cancelled")
)
