package domain

import "fmt"

// Error types for consistent error handling across the ledger.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates malformed or contradictory input.
// Never retried; always surfaced to the caller as a client error.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrSetup indicates the deployment is missing required configuration,
// e.g. no profile has been created yet.
type ErrSetup struct {
	Message string
}

func (e *ErrSetup) Error() string {
	return fmt.Sprintf("setup error: %s", e.Message)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
