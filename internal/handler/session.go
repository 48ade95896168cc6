package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/embedchat/widget-gateway/internal/events"
	"github.com/embedchat/widget-gateway/internal/middleware"
	"github.com/embedchat/widget-gateway/internal/session"
)

// SessionHandler serves the session bootstrap surface.
type SessionHandler struct {
	registry *Registry
}

// NewSessionHandler creates a session handler over the registry.
func NewSessionHandler(registry *Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// Ensure resolves the widget session, repairing it once if the cached
// identity turns out stale. Idempotent for healthy sessions.
func (h *SessionHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, func(ws *WidgetSession) session.Result {
		return ws.Bootstrap.EnsureSession(r.Context())
	})
}

// Fresh abandons the cached identity and builds a brand-new visitor and
// conversation.
func (h *SessionHandler) Fresh(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, func(ws *WidgetSession) session.Result {
		return ws.Bootstrap.FreshInit(r.Context())
	})
}

func (h *SessionHandler) resolve(w http.ResponseWriter, r *http.Request, run func(*WidgetSession) session.Result) {
	ctx := r.Context()
	sessionID := middleware.GetSessionID(ctx)
	siteID := middleware.GetSiteID(ctx)

	ws := h.registry.Get(sessionID)
	res := run(ws)

	if !res.OK {
		h.registry.deps.Logger.Error("session bootstrap failed",
			zap.String("session_id", sessionID), zap.Error(res.Failure))
		h.registry.deps.Events.Publish(ctx, events.Event{
			Type:      events.TypeSessionFailed,
			SiteID:    siteID,
			SessionID: sessionID,
			Detail:    res.Error,
		})
		writeJSON(w, http.StatusBadGateway, res)
		return
	}

	ws.Engine.SetConversation(ctx, res.Conversation)

	eventType := events.TypeSessionEnsured
	if res.Repaired {
		eventType = events.TypeSessionRepaired
	}
	h.registry.deps.Events.Publish(ctx, events.Event{
		Type:             eventType,
		SiteID:           siteID,
		SessionID:        sessionID,
		VisitorUUID:      res.VisitorUUID,
		ConversationUUID: res.Conversation.UUID,
	})

	writeJSON(w, http.StatusOK, res)
}

// Delete resets the widget session: the visitor is removed upstream on a
// best-effort basis and the server-side slot is cleared.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := middleware.GetSessionID(ctx)
	siteID := middleware.GetSiteID(ctx)

	ws := h.registry.Get(sessionID)
	if err := ws.Bootstrap.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	ws.Engine.SetConversation(ctx, nil)
	h.registry.Drop(sessionID)

	h.registry.deps.Events.Publish(ctx, events.Event{
		Type:      events.TypeSessionReset,
		SiteID:    siteID,
		SessionID: sessionID,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
