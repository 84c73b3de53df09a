package domain

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrValidation              = errors.New("validation failed")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidCurrency         = errors.New("invalid currency")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrAmountMismatch          = errors.New("amount does not match amount due")
	ErrPropertyUnavailable     = errors.New("property not available for booking")
	ErrBookingConflict         = errors.New("dates overlap an existing reservation")
	ErrInvalidTransition       = errors.New("invalid booking transition")
	ErrVersionConflict         = errors.New("optimistic lock conflict")
	ErrBookingNotPayable       = errors.New("booking is not awaiting payment")
	ErrAlreadyPaid             = errors.New("booking already has a successful payment")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrIdempotencyKeyReused    = errors.New("idempotency key reused with different parameters")
	ErrPaymentTerminal         = errors.New("payment already in terminal state")
	ErrPaymentGateway          = errors.New("payment gateway error")
	ErrUnknownGateway          = errors.New("unknown payment gateway")
	ErrInvalidSignature        = errors.New("webhook signature invalid")
	ErrIdempotencyViolation    = errors.New("conflicting terminal payment status")
	ErrReconciliationMismatch  = errors.New("gateway status disagrees with local terminal status")
	ErrLedgerImbalance         = errors.New("ledger group does not balance")
	ErrLedgerGroupExists       = errors.New("ledger group already posted")
)
