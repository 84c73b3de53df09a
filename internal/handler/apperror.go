package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Not allowed for this user"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
	ErrRateLimited      = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests"}

	ErrBookingConflict       = &AppError{http.StatusConflict, "BOOKING_CONFLICT", "Dates are no longer available"}
	ErrPropertyUnavailable   = &AppError{http.StatusUnprocessableEntity, "PROPERTY_UNAVAILABLE", "Property cannot be booked"}
	ErrInvalidTransition     = &AppError{http.StatusConflict, "INVALID_TRANSITION", "Booking cannot change to that status now"}
	ErrBookingNotPayable     = &AppError{http.StatusConflict, "BOOKING_NOT_PAYABLE", "Booking is not awaiting payment"}
	ErrAmountMismatch        = &AppError{http.StatusUnprocessableEntity, "AMOUNT_MISMATCH", "Amount does not match the amount due"}
	ErrCurrencyMismatch      = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrInvalidCurrency       = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrInvalidAmount         = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrVersionConflict       = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrUnknownGateway        = &AppError{http.StatusBadRequest, "UNKNOWN_GATEWAY", "Payment gateway is not supported"}
	ErrPaymentGateway        = &AppError{http.StatusBadGateway, "GATEWAY_ERROR", "Payment gateway did not accept the request, retry with the same Idempotency-Key"}
)
