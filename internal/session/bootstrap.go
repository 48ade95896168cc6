package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/embedchat/widget-gateway/internal/model"
	"github.com/embedchat/widget-gateway/internal/upstream"
	"github.com/embedchat/widget-gateway/pkg/logger"
	"github.com/embedchat/widget-gateway/pkg/metrics"
)

// Options steer a bootstrap pass.
type Options struct {
	// AutoCreateConversation always creates a fresh conversation instead
	// of reusing the visitor's active one.
	AutoCreateConversation bool
	// ForceNewVisitor clears the cached identity before resolving.
	ForceNewVisitor bool
}

// Result is the tagged outcome of a bootstrap pass. Failures ride in
// Failure; nothing is thrown past this boundary.
type Result struct {
	OK           bool                `json:"ok"`
	VisitorUUID  string              `json:"visitor_uuid,omitempty"`
	Conversation *model.Conversation `json:"conversation,omitempty"`
	// Repaired marks that a stale cached identity was cleared and the
	// session rebuilt from scratch during this pass.
	Repaired bool       `json:"repaired,omitempty"`
	Failure  *InitError `json:"-"`
	Error    string     `json:"error,omitempty"`
}

func failure(err *InitError) Result {
	return Result{Failure: err, Error: err.Error()}
}

// Bootstrap resolves and repairs the visitor/conversation session.
type Bootstrap struct {
	visitors      upstream.VisitorDirectory
	conversations upstream.ConversationDirectory
	store         Store
	logger        *logger.Logger
}

// NewBootstrap creates a bootstrap state machine over the given directories
// and identity store.
func NewBootstrap(
	visitors upstream.VisitorDirectory,
	conversations upstream.ConversationDirectory,
	store Store,
	log *logger.Logger,
) *Bootstrap {
	return &Bootstrap{
		visitors:      visitors,
		conversations: conversations,
		store:         store,
		logger:        log,
	}
}

// Store exposes the identity slot, for consumers that need the raw UUID.
func (b *Bootstrap) Store() Store {
	return b.store
}

// EnsureSession is the primary entry point: trust-but-verify the cached
// visitor UUID, self-heal once on staleness, and return the resolved pair.
// Calling it again on a healthy session returns the same pair with no side
// effects beyond the verification round trip.
func (b *Bootstrap) EnsureSession(ctx context.Context) Result {
	uuid, ok := b.store.Get()
	if !ok {
		res := b.QuickInit(ctx)
		b.record(res)
		return res
	}

	visitor, err := b.visitors.GetByUUID(ctx, uuid)
	if err != nil {
		// Backend error during verification: treat as a stale-session
		// signal. One repair pass, never a loop.
		b.logger.Warn("session verification failed, reinitializing",
			zap.String("visitor_uuid", uuid), zap.Error(err))
		res := b.selfHeal(ctx)
		b.record(res)
		return res
	}
	if visitor == nil {
		// Cached identity no longer exists upstream.
		b.logger.Info("cached visitor not found upstream, reinitializing",
			zap.String("visitor_uuid", uuid))
		res := b.selfHeal(ctx)
		b.record(res)
		return res
	}

	conversation, err := b.conversations.GetActiveByVisitor(ctx, uuid)
	if err != nil {
		b.logger.Warn("active conversation fetch failed, reinitializing",
			zap.String("visitor_uuid", uuid), zap.Error(err))
		res := b.selfHeal(ctx)
		b.record(res)
		return res
	}

	if conversation == nil {
		conversation, err = b.conversations.Create(ctx, uuid)
		if err != nil || conversation == nil {
			res := failure(conversationInitError("failed to create conversation for existing visitor", err))
			b.record(res)
			return res
		}
	}

	res := Result{OK: true, VisitorUUID: uuid, Conversation: conversation}
	b.record(res)
	return res
}

// selfHeal clears the stale slot and runs one clean-slate init pass.
func (b *Bootstrap) selfHeal(ctx context.Context) Result {
	if err := b.store.Clear(); err != nil {
		b.logger.Warn("failed to clear visitor slot", zap.Error(err))
	}
	metrics.SessionSelfHealsTotal.Inc()

	res := b.QuickInit(ctx)
	res.Repaired = true
	return res
}

// QuickInit resolves a session reusing whatever exists: get-or-create the
// visitor, then fetch-or-create the conversation.
func (b *Bootstrap) QuickInit(ctx context.Context) Result {
	return b.initialize(ctx, Options{AutoCreateConversation: false})
}

// FreshInit forces a brand-new visitor and conversation.
func (b *Bootstrap) FreshInit(ctx context.Context) Result {
	res := b.initialize(ctx, Options{ForceNewVisitor: true, AutoCreateConversation: true})
	b.record(res)
	return res
}

func (b *Bootstrap) initialize(ctx context.Context, opts Options) Result {
	visitorUUID, err := b.InitializeVisitor(ctx, opts)
	if err != nil {
		if initErr, ok := err.(*InitError); ok {
			return failure(initErr)
		}
		return failure(visitorInitError("failed to initialize visitor", err))
	}

	conversation, err := b.InitializeConversation(ctx, visitorUUID, opts)
	if err != nil {
		if initErr, ok := err.(*InitError); ok {
			return failure(initErr)
		}
		return failure(conversationInitError("failed to initialize conversation", err))
	}

	return Result{OK: true, VisitorUUID: visitorUUID, Conversation: conversation}
}

// InitializeVisitor resolves a visitor UUID: cached slot first, then a
// create against the directory. The resolved UUID is persisted in the slot.
func (b *Bootstrap) InitializeVisitor(ctx context.Context, opts Options) (string, error) {
	if opts.ForceNewVisitor {
		if err := b.store.Clear(); err != nil {
			b.logger.Warn("failed to clear visitor slot", zap.Error(err))
		}
	}

	if uuid, ok := b.store.Get(); ok {
		return uuid, nil
	}

	visitor, err := b.visitors.Create(ctx)
	if err != nil {
		return "", visitorInitError("failed to get or create visitor UUID", err)
	}
	if visitor == nil || visitor.UUID == "" {
		return "", visitorInitError("failed to get or create visitor UUID", nil)
	}

	if err := b.store.Set(visitor.UUID); err != nil {
		b.logger.Warn("failed to persist visitor slot", zap.Error(err))
	}
	return visitor.UUID, nil
}

// InitializeConversation resolves the conversation for a visitor: either a
// forced create, or the active conversation with create-if-absent fallback.
func (b *Bootstrap) InitializeConversation(ctx context.Context, visitorUUID string, opts Options) (*model.Conversation, error) {
	if opts.AutoCreateConversation {
		conversation, err := b.conversations.Create(ctx, visitorUUID)
		if err != nil {
			return nil, conversationInitError("failed to create new conversation", err)
		}
		return conversation, nil
	}

	conversation, err := b.conversations.GetActiveByVisitor(ctx, visitorUUID)
	if err != nil {
		b.logger.Warn("active conversation lookup failed, creating new",
			zap.String("visitor_uuid", visitorUUID), zap.Error(err))
	}
	if conversation != nil {
		return conversation, nil
	}

	conversation, err = b.conversations.Create(ctx, visitorUUID)
	if err != nil {
		return nil, conversationInitError("failed to get active conversation or create new one", err)
	}
	return conversation, nil
}

// SessionReady reports whether the cached visitor still resolves upstream.
func (b *Bootstrap) SessionReady(ctx context.Context) bool {
	uuid, ok := b.store.Get()
	if !ok {
		return false
	}
	visitor, err := b.visitors.GetByUUID(ctx, uuid)
	return err == nil && visitor != nil
}

// Reset deletes the visitor upstream (best effort) and clears the slot.
func (b *Bootstrap) Reset(ctx context.Context) error {
	uuid, ok := b.store.Get()
	if ok {
		if _, err := b.visitors.Delete(ctx, uuid); err != nil {
			b.logger.Warn("failed to delete visitor upstream",
				zap.String("visitor_uuid", uuid), zap.Error(err))
		}
	}
	return b.store.Clear()
}

func (b *Bootstrap) record(res Result) {
	outcome := "ok"
	if !res.OK {
		outcome = "failed"
	}
	metrics.SessionsEnsuredTotal.WithLabelValues(outcome).Inc()
}
