package handler

import (
	"sync"

	"github.com/embedchat/widget-gateway/internal/config"
	"github.com/embedchat/widget-gateway/internal/events"
	"github.com/embedchat/widget-gateway/internal/session"
	"github.com/embedchat/widget-gateway/internal/timeline"
	"github.com/embedchat/widget-gateway/internal/upstream"
	"github.com/embedchat/widget-gateway/pkg/logger"
	"github.com/embedchat/widget-gateway/pkg/metrics"
)

// Deps are the collaborators a widget session is assembled from.
type Deps struct {
	Visitors      upstream.VisitorDirectory
	Conversations upstream.ConversationDirectory
	Messages      upstream.MessageDirectory
	Events        *events.Publisher
	Logger        *logger.Logger
	Config        *config.Config
}

// WidgetSession pairs one bootstrap state machine with one timeline
// engine. The identity slot lives server-side, keyed by the widget token
// subject, standing in for the browser's scoped storage slot.
type WidgetSession struct {
	Bootstrap *session.Bootstrap
	Engine    *timeline.Engine
}

// Registry holds live widget sessions.
type Registry struct {
	mu       sync.Mutex
	deps     Deps
	sessions map[string]*WidgetSession
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*WidgetSession),
	}
}

// Get returns the widget session for the given id, creating it on first
// contact.
func (r *Registry) Get(sessionID string) *WidgetSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.sessions[sessionID]; ok {
		return ws
	}

	cfg := r.deps.Config
	ws := &WidgetSession{
		Bootstrap: session.NewBootstrap(
			r.deps.Visitors,
			r.deps.Conversations,
			session.NewMemoryStore(),
			r.deps.Logger,
		),
		Engine: timeline.NewEngine(timeline.Config{
			Messages:        r.deps.Messages,
			Logger:          r.deps.Logger,
			UpstreamTimeout: cfg.UpstreamTimeout,
			InitialPageSize: cfg.InitialPageSize,
			OlderPageSize:   cfg.OlderPageSize,
			EngineName:      cfg.EngineName,
		}),
	}
	r.sessions[sessionID] = ws
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return ws
}

// Drop removes a widget session, if present.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; ok {
		delete(r.sessions, sessionID)
		metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}
