// ABOUTME: Error taxonomy shared by the session, feed, mutation, and thread layers.
// ABOUTME: Sentinels are matched with errors.Is; AuthError carries the failing step.
package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth marks registration, code exchange, or profile fetch failures.
	// Callers must drop back to the anonymous state and re-authenticate.
	ErrAuth = errors.New("authentication failed")

	// ErrNetwork marks any failed remote call.
	ErrNetwork = errors.New("network request failed")

	// ErrValidation marks input rejected before any remote call is made.
	ErrValidation = errors.New("invalid input")

	// ErrNotAuthenticated is returned when an operation needs a session.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrAuthInProgress is returned when another authentication attempt is in flight.
	ErrAuthInProgress = errors.New("authentication already in progress")

	// ErrAuthTimeout is returned when the redirect never arrives.
	ErrAuthTimeout = errors.New("timed out waiting for authorization redirect")

	// ErrMutationInFlight is returned when the same post and kind already has a pending mutation.
	ErrMutationInFlight = errors.New("mutation already in flight")

	// ErrNotAuthor is returned when deleting a post the current user did not write.
	ErrNotAuthor = errors.New("only the author can delete this post")

	// ErrNotFound is returned when a post is not held locally and cannot be fetched.
	ErrNotFound = errors.New("not found")
)

// AuthError wraps a failure in one step of the authentication flow.
type AuthError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, ErrAuth)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrAuth, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is reports AuthError as ErrAuth.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// NewAuthError builds an AuthError for op.
func NewAuthError(op string, err error) error {
	return &AuthError{Op: op, Err: err}
}

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
