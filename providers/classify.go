package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"noteposter/core"
)

// classifyStatus maps an HTTP status code from a provider to the closed
// error taxonomy. 2xx never reaches this function.
func classifyStatus(provider string, status int, body string) *core.GenerationError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrInvalidAPIKey(provider)
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit(provider)
	default:
		return core.ErrGenerationFailed(
			provider+" returned an unexpected response",
			statusDetails(status, body))
	}
}

// classifyTransport maps a transport-level failure (connection refused,
// DNS, timeout, canceled context) to the taxonomy. Context cancellation is
// passed through untyped so the orchestrator can distinguish a user cancel
// from a provider failure.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return core.ErrNetwork(provider, err)
}

// looksContentFiltered reports whether a provider error message indicates
// a content-policy rejection rather than a generic failure.
func looksContentFiltered(message string) bool {
	msg := strings.ToLower(message)
	return strings.Contains(msg, "content_policy") ||
		strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "safety system") ||
		strings.Contains(msg, "moderation")
}

func statusDetails(status int, body string) string {
	detail := http.StatusText(status)
	if body != "" {
		detail += ": " + truncateText(strings.TrimSpace(body), 300)
	}
	return detail
}
