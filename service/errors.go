package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/freewilll/splitledger/database"
	"github.com/go-playground/validator/v10"
)

// ValidationError reports missing or invalid caller input. Nothing was
// written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// NotFoundError reports a referenced user, group or expense that doesn't
// exist. Nothing was written.
type NotFoundError struct {
	Kind string
	ID   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// ConflictError reports a write the store rejected because of a concurrent
// one. The transaction was rolled back whole, so the operation can be retried.
type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Err.Error()
}

// Unwrap returns the store error
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// invalid builds a ValidationError
func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// notFound turns database.ErrNotFound into a NotFoundError for kind/id and
// passes any other error through storeError
func notFound(err error, kind string, id int) error {
	if errors.Is(err, database.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return storeError(err)
}

// storeError maps store sentinel errors onto the service taxonomy. Errors that
// already belong to it pass through unchanged.
func storeError(err error) error {
	var (
		validation *ValidationError
		missing    *NotFoundError
		conflict   *ConflictError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &validation), errors.As(err, &missing), errors.As(err, &conflict):
		return err
	case errors.Is(err, database.ErrConflict):
		return &ConflictError{Err: err}
	case errors.Is(err, database.ErrCurrencyMismatch):
		return &ValidationError{Field: "currency", Reason: "debts between these users in this context use another currency"}
	case errors.Is(err, database.ErrNotFound):
		return &NotFoundError{Kind: "record"}
	default:
		return err
	}
}

// validationErrors converts validator's errors into a ValidationError naming
// the first offending field
func validationErrors(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fe := errs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "email":
		return invalid(field, "must be a valid email address")
	case "len":
		return invalid(field, "must be %s characters long", fe.Param())
	case "min":
		return invalid(field, "must be at least %s characters long", fe.Param())
	default:
		return invalid(field, "failed %s check", fe.Tag())
	}
}
