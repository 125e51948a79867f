package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput signals text that is empty after trimming. Caller error, never retried.
	ErrEmptyInput = errors.New("empty input text")
	// ErrProviderUnavailable signals a missing embedding provider credential or configuration.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrProviderExhausted signals that all embedding retries failed.
	ErrProviderExhausted = errors.New("embedding provider exhausted retries")
	// ErrIndexUnavailable signals an unreachable vector index backend.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrValidationFailed signals extracted text too short to embed.
	ErrValidationFailed = errors.New("extracted text failed validation")
	// ErrItemNotFound signals a missing captured item.
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidStatusChange signals an embedding status write that breaks the
	// pending/completed/failed transition rules.
	ErrInvalidStatusChange = errors.New("invalid embedding status change")
	// ErrRecordNotFound signals a missing vector record.
	ErrRecordNotFound = errors.New("vector record not found")
)

// ExhaustedError wraps ErrProviderExhausted with the last underlying failure
// and the number of attempts made.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrProviderExhausted.Error(), e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return ErrProviderExhausted }

// NewExhausted creates a retry-exhaustion error carrying the last attempt's failure.
func NewExhausted(attempts int, last error) error {
	return &ExhaustedError{Attempts: attempts, Last: last}
}
