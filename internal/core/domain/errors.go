package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyPayload     = errors.New("empty payload")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotConfigured    = errors.New("not configured")
	ErrRefused          = errors.New("document refused")
	ErrTemporary        = errors.New("temporary failure")
	ErrProviderFailure  = errors.New("analysis provider failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UserError carries the message a caller is allowed to see next to the error kind.
type UserError struct {
	Kind    error
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Kind
}

// NewUserError builds an error of the given kind whose message is safe to return to clients.
func NewUserError(kind error, message string) error {
	return &UserError{Kind: kind, Message: message}
}

// UserMessage returns the client-facing message of err, if it has one.
func UserMessage(err error) (string, bool) {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message, true
	}
	return "", false
}
