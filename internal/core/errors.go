package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced row does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input rejected before any store call.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a write would break a uniqueness rule,
	// such as a second category with the same name and type.
	ErrConflict = errors.New("already exists")

	ErrInvalidDay    = fmt.Errorf("%w: invalid day", ErrValidation)
	ErrInvalidMonth  = fmt.Errorf("%w: invalid month", ErrValidation)
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)
)

// GatewayError wraps a failure of the underlying store.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError wraps err unless it is nil or already a not-found or
// conflict error.
func NewGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

// PropagationWarning records a dependent-table write that failed after the
// primary write of a cascading operation was committed.
type PropagationWarning struct {
	Table string
	Err   error
}

func (w PropagationWarning) Error() string {
	return fmt.Sprintf("propagation to %s failed: %v", w.Table, w.Err)
}

func (w PropagationWarning) Unwrap() error {
	return w.Err
}

func (w PropagationWarning) MarshalJSON() ([]byte, error) {
	msg := ""
	if w.Err != nil {
		msg = w.Err.Error()
	}
	return json.Marshal(struct {
		Table string `json:"table"`
		Error string `json:"error"`
	}{w.Table, msg})
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
