package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetryableByKind(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{KindInvalidAPIKey, false},
		{KindRateLimit, true},
		{KindNetworkError, true},
		{KindGenerationFailed, false},
		{KindContentFiltered, false},
		{KindNoContent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewGenerationError(tt.kind, "boom", "")
			if err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.retryable)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestConstructorsSetKinds(t *testing.T) {
	tests := []struct {
		name string
		err  *GenerationError
		kind ErrorKind
	}{
		{"invalid key", ErrInvalidAPIKey("openai"), KindInvalidAPIKey},
		{"rate limit", ErrRateLimit("openai"), KindRateLimit},
		{"network", ErrNetwork("openai", errors.New("refused")), KindNetworkError},
		{"failed", ErrGenerationFailed("bad", ""), KindGenerationFailed},
		{"filtered", ErrContentFiltered("openai", "policy"), KindContentFiltered},
		{"no content", ErrNoContent("openai"), KindNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.kind)
			}
		})
	}
}

func TestErrorStringIncludesDetails(t *testing.T) {
	err := NewGenerationError(KindRateLimit, "slow down", "retry later")
	want := "RATE_LIMIT: slow down (retry later)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := NewGenerationError(KindNoContent, "empty", "")
	if bare.Error() != "NO_CONTENT: empty" {
		t.Errorf("Error() = %q", bare.Error())
	}
}

func TestCoerceErrorPassesTypedThrough(t *testing.T) {
	typed := ErrRateLimit("google")
	got := CoerceError(typed)
	if got != typed {
		t.Error("typed error should pass through unchanged")
	}

	wrapped := fmt.Errorf("step failed: %w", typed)
	got = CoerceError(wrapped)
	if got.Kind != KindRateLimit {
		t.Errorf("Kind = %s, want %s", got.Kind, KindRateLimit)
	}
}

func TestCoerceErrorClosesTaxonomy(t *testing.T) {
	got := CoerceError(errors.New("nil pointer dereference"))
	if got.Kind != KindGenerationFailed {
		t.Errorf("Kind = %s, want %s", got.Kind, KindGenerationFailed)
	}
	if got.Retryable {
		t.Error("coerced errors must not be retryable")
	}

	if CoerceError(nil) != nil {
		t.Error("CoerceError(nil) should be nil")
	}
}

func TestSuggestionsCoverEveryKind(t *testing.T) {
	kinds := []ErrorKind{
		KindInvalidAPIKey, KindRateLimit, KindNetworkError,
		KindGenerationFailed, KindContentFiltered, KindNoContent,
	}
	for _, kind := range kinds {
		if len(kind.Suggestions()) == 0 {
			t.Errorf("kind %s has no remediation suggestions", kind)
		}
	}
}
