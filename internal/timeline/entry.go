// Package timeline owns the in-memory message timeline for one active
// conversation: optimistic sends, history loads, backward cursor
// pagination, and presentation-ready normalization.
package timeline

import (
	"time"

	"github.com/embedchat/widget-gateway/internal/model"
)

// Entry is one presentation-ready timeline slot. Slots move through a small
// lifecycle: visitor side Pending -> Confirmed|Failed, assistant side
// Thinking -> Confirmed|SystemError. Resolved slots are terminal; a retry
// allocates a new pending slot instead of reviving one.
type Entry struct {
	// ID is the slot identity: a backend id rendered as a string, or a
	// locally generated temp-/thinking-/date- identifier.
	ID               string    `json:"id"`
	RemoteID         int64     `json:"remote_id,omitempty"`
	ConversationUUID string    `json:"conversation_uuid,omitempty"`
	Sender           string    `json:"sender"`
	Engine           string    `json:"engine,omitempty"`
	MessageType      string    `json:"message_type"`
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
	IsSending        bool      `json:"is_sending,omitempty"`
	IsSuccessful     *bool     `json:"is_successful,omitempty"`
	IsThinking       bool      `json:"is_thinking,omitempty"`
}

// CanRetry reports whether the slot represents a resolved failure the user
// may retry by re-sending.
func (e Entry) CanRetry() bool {
	if e.MessageType == model.TypeDate || e.IsThinking || e.IsSending {
		return false
	}
	return e.IsSuccessful != nil && !*e.IsSuccessful
}

// IsDateMarker reports whether the slot is a synthetic calendar-day marker.
func (e Entry) IsDateMarker() bool {
	return e.MessageType == model.TypeDate
}

// Snapshot is a point-in-time copy of the engine state handed to callers.
type Snapshot struct {
	Entries        []Entry `json:"entries"`
	IsSending      bool    `json:"is_sending"`
	IsLoadingOlder bool    `json:"is_loading_older"`
	HasMore        bool    `json:"has_more"`
	Loaded         bool    `json:"loaded"`
}

func boolPtr(v bool) *bool {
	return &v
}
