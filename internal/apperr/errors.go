package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Nothing was sent or stored.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing project, template or attachment.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured marks a project without SMTP configuration.
	ErrNotConfigured = errors.New("smtp not configured")
)

// Validation wraps a message as a validation error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps a resource name and id as a not found error.
func NotFound(resource, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, resource, id)
}

// Message returns err's text without the sentinel prefix, for display.
func Message(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrValidation, ErrNotFound} {
		prefix := sentinel.Error() + ": "
		if errors.Is(err, sentinel) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}
