package domain

import (
	"errors"
	"strings"
)

// Sentinel errors shared by every kernel component. Wrap them with
// fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrPermissionDenied      = errors.New("permission denied")
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation error")
	ErrConflict              = errors.New("conflict")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrReference             = errors.New("unresolved reference")
)

// PermissionError is returned when a policy or governance gate refuses an
// operation. It unwraps to ErrPermissionDenied.
type PermissionError struct {
	Gate    string
	Reasons []string
}

// NewPermissionError builds a PermissionError for the given gate.
func NewPermissionError(gate string, reasons ...string) *PermissionError {
	return &PermissionError{Gate: gate, Reasons: reasons}
}

func (e *PermissionError) Error() string {
	if len(e.Reasons) == 0 {
		return e.Gate + ": permission denied"
	}
	return e.Gate + ": permission denied: " + strings.Join(e.Reasons, "; ")
}

func (e *PermissionError) Unwrap() error {
	return ErrPermissionDenied
}
