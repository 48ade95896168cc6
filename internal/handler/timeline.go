package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/embedchat/widget-gateway/internal/events"
	"github.com/embedchat/widget-gateway/internal/middleware"
	"github.com/embedchat/widget-gateway/internal/timeline"
)

// TimelineHandler serves the message timeline surface.
type TimelineHandler struct {
	registry *Registry
}

// NewTimelineHandler creates a timeline handler over the registry.
func NewTimelineHandler(registry *Registry) *TimelineHandler {
	return &TimelineHandler{registry: registry}
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	Outcome  string            `json:"outcome"`
	Timeline timeline.Snapshot `json:"timeline"`
}

// Get returns the current timeline snapshot.
func (h *TimelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws := h.registry.Get(middleware.GetSessionID(r.Context()))
	writeJSON(w, http.StatusOK, ws.Engine.Snapshot())
}

// Send runs the optimistic send protocol and returns the resolved
// timeline. A send already in flight yields 409; everything else,
// including transport failures against the upstream, resolves into the
// timeline itself and returns 200.
func (h *TimelineHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.GetSessionID(ctx)
	siteID := middleware.GetSiteID(ctx)

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws := h.registry.Get(sessionID)
	result, err := ws.Engine.SendMessage(ctx, req.Text)
	if err != nil {
		if errors.Is(err, timeline.ErrSendInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	conv := ws.Engine.Conversation()
	conversationUUID := ""
	if conv != nil {
		conversationUUID = conv.UUID
	}
	eventType := events.TypeMessageSent
	if result.Outcome == timeline.OutcomeTransport || result.Outcome == timeline.OutcomeAIFailed {
		eventType = events.TypeMessageFailed
	}
	if result.Outcome != timeline.OutcomeNoop {
		h.registry.deps.Events.Publish(ctx, events.Event{
			Type:             eventType,
			SiteID:           siteID,
			SessionID:        sessionID,
			ConversationUUID: conversationUUID,
			Detail:           result.Outcome,
		})
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Outcome:  result.Outcome,
		Timeline: ws.Engine.Snapshot(),
	})
}

// Older loads one older history page and returns the updated snapshot.
// Exhausted history or a load already in flight is a quiet no-op.
func (h *TimelineHandler) Older(w http.ResponseWriter, r *http.Request) {
	ws := h.registry.Get(middleware.GetSessionID(r.Context()))
	ws.Engine.LoadOlderMessages(r.Context())
	writeJSON(w, http.StatusOK, ws.Engine.Snapshot())
}
