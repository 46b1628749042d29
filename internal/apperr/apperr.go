// Package apperr defines the error kinds shared by the mail core and their
// mapping onto method-level error responses.
package apperr

import (
	"errors"

	"github.com/jarrod-lowe/jmap-service-libs/jmaperror"
)

// Error kinds. Package sentinels wrap one of these so callers can classify
// failures with errors.Is without knowing the concrete sentinel.
var (
	// ErrValidation marks malformed or empty input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced profile, message, entry or thread that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks a caller acting on a resource it does not own.
	ErrUnauthorized = errors.New("not authorized")
	// ErrCollaborator marks a failed or invalid language-model call.
	ErrCollaborator = errors.New("collaborator failed")
	// ErrConsistency marks a broken internal invariant.
	ErrConsistency = errors.New("consistency violation")
)

// kindError attaches a kind to a detail message.
type kindError struct {
	kind   error
	detail string
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.detail
}

func (e *kindError) Unwrap() error {
	return e.kind
}

// New returns an error of the given kind carrying detail.
func New(kind error, detail string) error {
	return &kindError{kind: kind, detail: detail}
}

// Validation returns an ErrValidation error with detail.
func Validation(detail string) error {
	return New(ErrValidation, detail)
}

// NotFound returns an ErrNotFound error with detail.
func NotFound(detail string) error {
	return New(ErrNotFound, detail)
}

// Unauthorized returns an ErrUnauthorized error with detail.
func Unauthorized(detail string) error {
	return New(ErrUnauthorized, detail)
}

// Collaborator wraps a language-model failure as ErrCollaborator.
func Collaborator(detail string, cause error) error {
	if cause == nil {
		return New(ErrCollaborator, detail)
	}
	return errors.Join(New(ErrCollaborator, detail), cause)
}

// ToMethodError maps an error onto the method error returned to callers.
// Validation, not-found and authorization failures are user-visible; anything
// else is reported as serverFail.
func ToMethodError(err error) *jmaperror.MethodError {
	switch {
	case errors.Is(err, ErrValidation):
		return jmaperror.InvalidArguments(err.Error())
	case errors.Is(err, ErrNotFound):
		return &jmaperror.MethodError{ErrType: "notFound", Description: err.Error()}
	case errors.Is(err, ErrUnauthorized):
		return jmaperror.Forbidden(err.Error())
	default:
		return jmaperror.ServerFail(err.Error(), err)
	}
}
