package attendance

import (
	"errors"
	"fmt"

	"hourlog/internal/idgen"
	"hourlog/internal/store"
	"hourlog/internal/timecalc"
)

// Business-rule outcomes. All of them abort the operation before anything
// is written; the message is safe to show to the operator.
var (
	ErrValidation             = errors.New("attendance: validation failed")
	ErrDuplicateDailyEntry    = errors.New("attendance: subject already has a record for today")
	ErrNoOpenEntry            = errors.New("attendance: no clock-in recorded for today")
	ErrAlreadyClosed          = errors.New("attendance: clock-out already recorded for today")
	ErrIncompleteManualEntry  = errors.New("attendance: subject, date, clock-in and clock-out are required")
	ErrDuplicateAccountNumber = errors.New("attendance: account number already registered")
	ErrSubjectNotFound        = errors.New("attendance: subject not found")
	ErrSubjectInactive        = errors.New("attendance: subject is inactive")

	ErrInvalidTimeFormat = timecalc.ErrInvalidTimeFormat
)

// ErrStorageIO marks persistence failures; these are fatal for the request.
var ErrStorageIO = store.ErrIO

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("attendance: invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func required(field string) error {
	return &ValidationError{Field: field, Reason: "required"}
}

// Reason maps err to a short stable label for metrics and API payloads.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStorageIO):
		return "storage_io"
	case errors.Is(err, ErrDuplicateDailyEntry):
		return "duplicate_daily_entry"
	case errors.Is(err, ErrNoOpenEntry):
		return "no_open_entry"
	case errors.Is(err, ErrAlreadyClosed):
		return "already_closed"
	case errors.Is(err, ErrIncompleteManualEntry):
		return "incomplete_manual_entry"
	case errors.Is(err, ErrDuplicateAccountNumber):
		return "duplicate_account_number"
	case errors.Is(err, ErrSubjectNotFound):
		return "subject_not_found"
	case errors.Is(err, ErrSubjectInactive):
		return "subject_inactive"
	case errors.Is(err, ErrInvalidTimeFormat):
		return "invalid_time_format"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, idgen.ErrExhausted):
		return "id_exhausted"
	default:
		return "internal"
	}
}

// IsBusinessError reports whether err is an expected rule outcome rather
// than an infrastructure failure.
func IsBusinessError(err error) bool {
	switch Reason(err) {
	case "ok", "storage_io", "id_exhausted", "internal":
		return false
	}
	return true
}
