package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a generation failure. The set is closed: provider
// clients are the only components that construct a GenerationError, the
// orchestrator propagates them unchanged, and anything untyped is coerced
// to KindGenerationFailed at the top level before it reaches the user.
type ErrorKind string

const (
	KindInvalidAPIKey    ErrorKind = "INVALID_API_KEY"
	KindRateLimit        ErrorKind = "RATE_LIMIT"
	KindNetworkError     ErrorKind = "NETWORK_ERROR"
	KindGenerationFailed ErrorKind = "GENERATION_FAILED"
	KindContentFiltered  ErrorKind = "CONTENT_FILTERED"
	KindNoContent        ErrorKind = "NO_CONTENT"
)

// GenerationError is the structured failure type for the generation
// pipeline. Retryable is fixed at construction time by the component that
// detected the failure; the retry controller inspects it but never
// reclassifies an error.
type GenerationError struct {
	Kind      ErrorKind // Error kind for programmatic handling
	Message   string    // Human-readable error message
	Details   string    // Optional provider response excerpt
	Retryable bool      // Whether automatic re-attempt is permitted
}

func (e *GenerationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewGenerationError constructs a typed error with the retryable flag
// implied by the kind: only NETWORK_ERROR and RATE_LIMIT are retryable.
func NewGenerationError(kind ErrorKind, message, details string) *GenerationError {
	return &GenerationError{
		Kind:      kind,
		Message:   message,
		Details:   details,
		Retryable: kind == KindNetworkError || kind == KindRateLimit,
	}
}

// ErrInvalidAPIKey returns an authentication-rejection error (401/403).
func ErrInvalidAPIKey(provider string) *GenerationError {
	return NewGenerationError(KindInvalidAPIKey,
		fmt.Sprintf("API key for %s was rejected", provider), "")
}

// ErrRateLimit returns a throttling error (429).
func ErrRateLimit(provider string) *GenerationError {
	return NewGenerationError(KindRateLimit,
		fmt.Sprintf("%s is rate limiting requests", provider), "")
}

// ErrNetwork returns a transport-failure error.
func ErrNetwork(provider string, cause error) *GenerationError {
	return NewGenerationError(KindNetworkError,
		fmt.Sprintf("network error talking to %s", provider), cause.Error())
}

// ErrGenerationFailed returns a non-retryable catch-all failure.
func ErrGenerationFailed(message, details string) *GenerationError {
	return NewGenerationError(KindGenerationFailed, message, details)
}

// ErrContentFiltered returns a content-policy rejection. Not retryable.
func ErrContentFiltered(provider, details string) *GenerationError {
	return NewGenerationError(KindContentFiltered,
		fmt.Sprintf("%s refused the request on content-policy grounds", provider), details)
}

// ErrNoContent returns a missing-payload error. Not retryable.
func ErrNoContent(provider string) *GenerationError {
	return NewGenerationError(KindNoContent,
		fmt.Sprintf("%s returned a response with no usable content", provider), "")
}

// AsGenerationError checks if an error is (or wraps) a GenerationError and
// returns it if so.
func AsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}

// CoerceError guarantees the closed taxonomy at the user-visible surface:
// a typed error passes through unchanged, anything else becomes
// GENERATION_FAILED with retryable=false.
func CoerceError(err error) *GenerationError {
	if err == nil {
		return nil
	}
	if genErr, ok := AsGenerationError(err); ok {
		return genErr
	}
	return ErrGenerationFailed("unexpected failure during generation", err.Error())
}

// IsRetryable reports whether an error carries a retryable classification.
// Untyped errors are never retryable.
func IsRetryable(err error) bool {
	if genErr, ok := AsGenerationError(err); ok {
		return genErr.Retryable
	}
	return false
}

// Suggestions returns remediation hints for an error kind, shown alongside
// the terminal error message when a progress surface is open.
func (k ErrorKind) Suggestions() []string {
	switch k {
	case KindInvalidAPIKey:
		return []string{
			"Verify the API key for the selected provider in your settings",
			"Check that the key has not expired or been revoked",
		}
	case KindRateLimit:
		return []string{
			"Wait a minute before trying again",
			"Check your provider plan's request quota",
		}
	case KindNetworkError:
		return []string{
			"Check your network connection",
			"Retry; transient transport failures usually clear quickly",
		}
	case KindContentFiltered:
		return []string{
			"Edit the note or the prompt to remove content the provider refuses",
			"Try a different style; some styles rephrase the prompt",
		}
	case KindNoContent:
		return []string{
			"Try again; the provider returned an empty response",
			"Try a different image model",
		}
	default:
		return []string{
			"Check the details below and try again",
		}
	}
}
