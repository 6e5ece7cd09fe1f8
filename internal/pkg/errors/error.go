package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Intake validation errors. Rejected synchronously, never queued.
var (
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrMissingRequiredField = errors.New("missing required field")
)

// Visit lifecycle and assignment errors. Surfaced to the caller as-is and never
// retried automatically.
var (
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrAlreadyAssigned       = errors.New("visit already assigned")
	ErrAssignmentInProgress  = errors.New("assignment already in progress for visit")
	ErrVisitNotPending       = errors.New("visit is not pending")
	ErrNoAvailableConsultant = errors.New("no available consultant")
)

// ErrStoreUnavailable marks a backing store that could not be reached.
var ErrStoreUnavailable = errors.New("backing store unavailable")

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPhone) ||
		errors.Is(err, ErrMissingRequiredField) ||
		errors.Is(err, ErrInvalidInput)
}

// IsConcurrency reports whether err is an assignment race the caller must resolve
// by re-reading current state.
func IsConcurrency(err error) bool {
	return errors.Is(err, ErrAlreadyAssigned) ||
		errors.Is(err, ErrAssignmentInProgress) ||
		errors.Is(err, ErrVisitNotPending)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
