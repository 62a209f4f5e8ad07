package fault

import "errors"

// Sentinel errors shared by the reconciliation services. Validation errors
// never leave partial state behind; ErrAtomicityFailure means the whole
// transaction was rolled back and the call is safe to retry.
var (
	ErrUnauthorized       = errors.New("not authorized")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidMethod      = errors.New("unsupported payment method")
	ErrInvalidDate        = errors.New("invalid due date")
	ErrOrderNotFound      = errors.New("order not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrReminderNotFound   = errors.New("reminder not found")
	ErrNotApplicable      = errors.New("no initial payment configured")
	ErrAlreadyCollected   = errors.New("initial payment already collected")
	ErrAtomicityFailure   = errors.New("transaction could not be applied")
	ErrAccountUnavailable = errors.New("account store unavailable")
)
