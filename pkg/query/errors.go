package query

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by DomainError. Match them with errors.Is.
var (
	// ErrMissingTable is returned when a verb runs before From.
	ErrMissingTable = errors.New("table not defined")

	// ErrWrongMode is returned when a verb is used in the wrong builder mode.
	ErrWrongMode = errors.New("wrong builder mode")

	// ErrNoCondition is returned by FirstOrNull and One when no condition was set.
	ErrNoCondition = errors.New("condition required")

	// ErrEmptyCondition is returned when a condition builder holds no criteria.
	ErrEmptyCondition = errors.New("empty condition")

	// ErrInvalidCriteria is returned for criteria missing a field or operator.
	ErrInvalidCriteria = errors.New("invalid criteria")

	// ErrNoRecords is returned by accessors that need at least one record.
	ErrNoRecords = errors.New("no records")
)

// DomainError reports misuse of the builders. It is always a programming
// error and is never retried.
type DomainError struct {
	Op    string
	Msg   string
	Cause error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return e.Msg
}

// Unwrap returns the sentinel cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

func domainError(op string, cause error, format string, args ...any) *DomainError {
	return &DomainError{Op: op, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// IsDomainError reports whether err is (or wraps) a DomainError.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
