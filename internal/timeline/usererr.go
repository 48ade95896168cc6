package timeline

import "strings"

// Messages holds the user-facing copy rendered into system error slots.
// Raw backend strings never reach the user except through this mapping.
// Embedders localize by supplying their own set.
type Messages struct {
	AIResponseFailed   string
	NetworkError       string
	ServiceUnavailable string
	TimeoutError       string
	GeneralError       string
	Thinking           string
}

// DefaultMessages is the English copy used when the embedder supplies none.
var DefaultMessages = Messages{
	AIResponseFailed:   "Sorry, the AI assistant is currently having trouble. Please try again in a moment or contact an admin if the problem persists.",
	NetworkError:       "Your internet connection seems to be having problems. Please check it and try again.",
	ServiceUnavailable: "The chat service is under maintenance. Please try again later.",
	TimeoutError:       "The AI response is taking too long. Please try sending a simpler message.",
	GeneralError:       "An unexpected error occurred. Please try again or contact an admin if the problem persists.",
	Thinking:           "The assistant is thinking...",
}

// UserMessage converts a technical error string into user-safe copy by
// pattern matching known failure families, falling back to the general
// message for anything unrecognized.
func (m Messages) UserMessage(raw string) string {
	lower := strings.ToLower(raw)

	switch {
	case strings.Contains(lower, "ai response failed"),
		strings.Contains(lower, "failed to generate response"):
		return m.AIResponseFailed
	case strings.Contains(lower, "network"),
		strings.Contains(lower, "connection"),
		strings.Contains(lower, "fetch"):
		return m.NetworkError
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "too long"):
		return m.TimeoutError
	case strings.Contains(lower, "service unavailable"),
		strings.Contains(lower, "maintenance"):
		return m.ServiceUnavailable
	default:
		return m.GeneralError
	}
}
