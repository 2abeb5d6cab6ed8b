package domain

import "errors"

// Failure kinds surfaced by the services. Anything else reaching a caller is
// a persistence failure and must not leak raw store error text to clients.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDrugNotFound      = errors.New("drug not found")
	ErrRequestNotFound   = errors.New("request not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyProcessed  = errors.New("request already processed")
)
