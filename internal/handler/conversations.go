package handler

import (
	"net/http"
	"strconv"

	"github.com/embedchat/widget-gateway/internal/middleware"
	"github.com/embedchat/widget-gateway/internal/model"
)

// ConversationHandler serves the visitor's conversation list.
type ConversationHandler struct {
	registry *Registry
}

// NewConversationHandler creates a conversation handler over the registry.
func NewConversationHandler(registry *Registry) *ConversationHandler {
	return &ConversationHandler{registry: registry}
}

// List returns the visitor's conversations, most recent first. A session
// that has not bootstrapped yet gets an empty list.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ws := h.registry.Get(middleware.GetSessionID(ctx))

	visitorUUID, ok := ws.Bootstrap.Store().Get()
	if !ok {
		writeJSON(w, http.StatusOK, model.ConversationPage{Items: []model.Conversation{}})
		return
	}

	limit := 20
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	items, err := h.registry.deps.Conversations.ListByVisitor(ctx, visitorUUID, limit, offset)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to list conversations")
		return
	}
	if items == nil {
		items = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, model.ConversationPage{
		Items:      items,
		TotalCount: len(items),
		Limit:      limit,
		Offset:     offset,
	})
}
