package provider

import "fmt"

// Kind classifies provider failures. The orchestrator's retry and response
// policy differs per kind, so a generic error is not enough.
type Kind int

const (
	// KindUnavailable covers network failures and provider 5xx responses.
	// Retryable a bounded number of times.
	KindUnavailable Kind = iota

	// KindRateLimited is the provider's 429. Retryable after backoff.
	KindRateLimited

	// KindInvalidPrompt means the provider refused the prompt itself.
	// Not retryable; surfaced to the client.
	KindInvalidPrompt
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidPrompt:
		return "invalid_prompt"
	default:
		return "unavailable"
	}
}

type Error struct {
	Kind   Kind
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Detail)
}

func classify(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 400 || status == 422:
		return KindInvalidPrompt
	default:
		return KindUnavailable
	}
}
