package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// Account state errors
	ErrAccountLocked = errors.New("account is temporarily locked")
)

// DomainError pairs an error kind with a message that is safe to show to users.
type DomainError struct {
	Kind    error
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Kind
}

func NewValidationError(format string, args ...any) error {
	return &DomainError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) error {
	return &DomainError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewForbiddenError(format string, args ...any) error {
	return &DomainError{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) error {
	return &DomainError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// LockedError reports a temporarily locked account.
type LockedError struct {
	MinutesLeft int
}

func (e *LockedError) Error() string {
	return "account locked due to too many failed attempts"
}

func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// InvalidCredentialsError reports a failed password check on an existing account.
type InvalidCredentialsError struct {
	AttemptsLeft int
}

func (e *InvalidCredentialsError) Error() string {
	return "invalid email or password"
}

func (e *InvalidCredentialsError) Unwrap() error {
	return ErrUnauthorized
}

// Message returns the user-facing message carried by err, or fallback when err
// carries none.
func Message(err error, fallback string) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	var le *LockedError
	if errors.As(err, &le) {
		return le.Error()
	}
	var ie *InvalidCredentialsError
	if errors.As(err, &ie) {
		return ie.Error()
	}
	return fallback
}
