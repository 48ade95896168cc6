package timeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/embedchat/widget-gateway/internal/model"
	"github.com/embedchat/widget-gateway/internal/upstream"
	"github.com/embedchat/widget-gateway/pkg/logger"
	"github.com/embedchat/widget-gateway/pkg/metrics"
)

// ErrSendInFlight is returned when a send is attempted while another one
// has not resolved. The engine owns this mutual exclusion; callers no
// longer need to gate on the IsSending flag themselves.
var ErrSendInFlight = errors.New("a send is already in flight for this conversation")

// Send outcome tags reported alongside a completed SendMessage.
const (
	OutcomeSuccess   = "success"
	OutcomeAIFailed  = "ai_failed"
	OutcomeTransport = "transport_error"
	OutcomeNoop      = "noop"
)

// SendResult describes how a send resolved. The timeline itself always
// ends in a consistent state; this is for observers (events, logging).
type SendResult struct {
	Outcome string
}

// Config assembles an Engine. Zero-value fields fall back to defaults.
type Config struct {
	Messages upstream.MessageDirectory
	Logger   *logger.Logger
	// Clock and NewID are injected capabilities so tests can pin time
	// and identifiers.
	Clock func() time.Time
	NewID func() string
	// UpstreamTimeout bounds every directory call made by the engine.
	UpstreamTimeout time.Duration
	InitialPageSize int
	OlderPageSize   int
	// EngineName is the AI engine tag stamped on outgoing messages.
	EngineName   string
	UserMessages Messages
}

// Engine owns the message timeline for a single active conversation. All
// mutations go through its own operations; the timeline slice is never
// handed out mutable.
type Engine struct {
	messages        upstream.MessageDirectory
	logger          *logger.Logger
	now             func() time.Time
	newID           func() string
	upstreamTimeout time.Duration
	initialPageSize int
	olderPageSize   int
	engineName      string
	msgs            Messages

	mu           sync.Mutex
	conversation *model.Conversation
	entries      []Entry
	sending      bool
	loadingOlder bool
	loaded       bool
	hasMore      bool
	nextBeforeID *int64
	// epoch increments on every conversation switch; in-flight results
	// from a previous epoch are discarded instead of merged.
	epoch uint64
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.InitialPageSize <= 0 {
		cfg.InitialPageSize = 50
	}
	if cfg.OlderPageSize <= 0 {
		cfg.OlderPageSize = 20
	}
	if cfg.EngineName == "" {
		cfg.EngineName = "gemini"
	}
	if cfg.UserMessages == (Messages{}) {
		cfg.UserMessages = DefaultMessages
	}

	return &Engine{
		messages:        cfg.Messages,
		logger:          cfg.Logger,
		now:             cfg.Clock,
		newID:           cfg.NewID,
		upstreamTimeout: cfg.UpstreamTimeout,
		initialPageSize: cfg.InitialPageSize,
		olderPageSize:   cfg.OlderPageSize,
		engineName:      cfg.EngineName,
		msgs:            cfg.UserMessages,
		hasMore:         true,
	}
}

// Snapshot returns a point-in-time copy of the timeline and its flags.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := make([]Entry, len(e.entries))
	copy(entries, e.entries)

	return Snapshot{
		Entries:        entries,
		IsSending:      e.sending,
		IsLoadingOlder: e.loadingOlder,
		HasMore:        e.hasMore,
		Loaded:         e.loaded,
	}
}

// Conversation returns the active conversation, or nil.
func (e *Engine) Conversation() *model.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversation
}

// SetConversation switches the active conversation. A switch is a hard
// reset: the previous timeline and pagination cursor are discarded and the
// new conversation's history is loaded. Passing the same conversation
// identity is a no-op.
func (e *Engine) SetConversation(ctx context.Context, conv *model.Conversation) {
	e.mu.Lock()
	sameIdentity := (conv == nil && e.conversation == nil) ||
		(conv != nil && e.conversation != nil && conv.UUID == e.conversation.UUID)
	if sameIdentity {
		e.mu.Unlock()
		return
	}

	e.conversation = conv
	e.entries = nil
	e.sending = false
	e.loadingOlder = false
	e.loaded = false
	e.hasMore = true
	e.nextBeforeID = nil
	e.epoch++
	e.mu.Unlock()

	e.LoadMessages(ctx)
}

// LoadMessages replaces the timeline wholesale with the newest history
// window. With no active conversation the result is an empty, exhausted
// timeline; that is the steady state, not an error. A failed fetch also
// resolves to the empty contract and surfaces only a log line.
func (e *Engine) LoadMessages(ctx context.Context) {
	e.mu.Lock()
	conv := e.conversation
	epoch := e.epoch
	if conv == nil {
		e.entries = nil
		e.hasMore = false
		e.nextBeforeID = nil
		e.loaded = true
		e.mu.Unlock()
		return
	}
	e.loaded = false
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.upstreamTimeout)
	defer cancel()
	page, err := e.messages.History(callCtx, conv.UUID, e.initialPageSize, 0)

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return
	}

	if err != nil {
		e.logger.Error("failed to load messages",
			zap.String("conversation_uuid", conv.UUID), zap.Error(err))
		metrics.HistoryLoadsTotal.WithLabelValues("initial", "error").Inc()
		e.entries = nil
		e.hasMore = false
		e.nextBeforeID = nil
		e.loaded = true
		return
	}

	e.entries = e.normalizePage(page.Items)
	e.hasMore = page.HasMore
	e.nextBeforeID = page.NextBeforeID
	e.loaded = true
	metrics.HistoryLoadsTotal.WithLabelValues("initial", "ok").Inc()
}

// LoadOlderMessages prepends one older history page. It is a no-op unless
// a conversation is active, more pages exist, and no older-page load is
// already in flight. A missing cursor despite HasMore marks the history
// exhausted rather than refetching the same window forever.
func (e *Engine) LoadOlderMessages(ctx context.Context) {
	e.mu.Lock()
	if e.conversation == nil || !e.hasMore || e.loadingOlder {
		e.mu.Unlock()
		return
	}
	if e.nextBeforeID == nil {
		e.hasMore = false
		e.mu.Unlock()
		return
	}
	conv := e.conversation
	beforeID := *e.nextBeforeID
	epoch := e.epoch
	e.loadingOlder = true
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.upstreamTimeout)
	defer cancel()
	page, err := e.messages.History(callCtx, conv.UUID, e.olderPageSize, beforeID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return
	}
	e.loadingOlder = false

	if err != nil {
		// Leave the timeline untouched; the cursor stays valid for retry.
		e.logger.Error("failed to load older messages",
			zap.String("conversation_uuid", conv.UUID),
			zap.Int64("before_id", beforeID), zap.Error(err))
		metrics.HistoryLoadsTotal.WithLabelValues("older", "error").Inc()
		return
	}

	older := e.normalizePage(page.Items)
	e.entries = append(older, e.entries...)
	e.hasMore = page.HasMore
	e.nextBeforeID = page.NextBeforeID
	metrics.HistoryLoadsTotal.WithLabelValues("older", "ok").Inc()
}

// SendMessage runs the optimistic send protocol: append a pending visitor
// slot and a thinking placeholder, make the single backend call, then
// resolve both slots in place. Empty text or a missing conversation is a
// silent no-op. Transport failures never propagate; they resolve into a
// failed visitor slot and a system error slot. The only error returned is
// ErrSendInFlight.
func (e *Engine) SendMessage(ctx context.Context, text string) (SendResult, error) {
	e.mu.Lock()
	if e.conversation == nil || strings.TrimSpace(text) == "" {
		e.mu.Unlock()
		return SendResult{Outcome: OutcomeNoop}, nil
	}
	if e.sending {
		e.mu.Unlock()
		metrics.SendsTotal.WithLabelValues(metrics.SendRejected).Inc()
		return SendResult{}, ErrSendInFlight
	}

	conv := e.conversation
	epoch := e.epoch
	e.sending = true

	now := e.now()
	pendingID := "temp-" + e.newID()
	thinkingID := "thinking-" + e.newID()

	e.entries = append(e.entries,
		Entry{
			ID:               pendingID,
			ConversationUUID: conv.UUID,
			Sender:           model.SenderVisitor,
			Engine:           e.engineName,
			MessageType:      model.TypeText,
			Text:             text,
			Timestamp:        now,
			IsSending:        true,
			IsSuccessful:     boolPtr(false),
		},
		Entry{
			ID:               thinkingID,
			ConversationUUID: conv.UUID,
			Sender:           model.SenderAssistant,
			MessageType:      model.TypeText,
			Text:             e.msgs.Thinking,
			Timestamp:        now,
			IsThinking:       true,
		},
	)
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.upstreamTimeout)
	defer cancel()
	outcome, err := e.messages.CreateAndTriggerReply(callCtx, model.CreateMessageRequest{
		ConversationUUID: conv.UUID,
		Sender:           model.SenderVisitor,
		Engine:           e.engineName,
		MessageType:      model.TypeText,
		MessageContent:   text,
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		// The conversation switched while the call was in flight; the
		// reset already dropped the optimistic slots.
		return SendResult{Outcome: OutcomeNoop}, nil
	}
	e.sending = false

	var result SendResult
	switch {
	case err != nil:
		result = e.resolveTransportFailure(pendingID, thinkingID, err)
	case outcome.AIFailed || outcome.AI == nil:
		result = e.resolveAIFailure(pendingID, thinkingID, outcome)
	default:
		result = e.resolveSuccess(pendingID, thinkingID, outcome)
	}

	e.ensureTodayMarker(conv.UUID)
	return result, nil
}

// resolveSuccess confirms both optimistic slots in place.
func (e *Engine) resolveSuccess(pendingID, thinkingID string, outcome *model.SendOutcome) SendResult {
	e.confirmVisitorSlot(pendingID, outcome.Visitor)

	ai := Normalize(*outcome.AI, e.now())
	if ai.ID == "" {
		ai.ID = thinkingID
	}
	ai.IsThinking = false
	if ai.IsSuccessful == nil {
		ai.IsSuccessful = boolPtr(true)
	}
	e.replaceEntry(thinkingID, ai)

	metrics.SendsTotal.WithLabelValues(metrics.SendSuccess).Inc()
	return SendResult{Outcome: OutcomeSuccess}
}

// resolveAIFailure confirms the visitor slot (the message was persisted)
// and turns the thinking placeholder into a user-safe system error.
func (e *Engine) resolveAIFailure(pendingID, thinkingID string, outcome *model.SendOutcome) SendResult {
	e.confirmVisitorSlot(pendingID, outcome.Visitor)

	raw := outcome.BackendMessage
	if raw == "" {
		raw = "AI response failed"
	}
	e.replaceEntry(thinkingID, e.systemErrorEntry(e.msgs.UserMessage(raw)))

	e.logger.Warn("backend reported AI failure", zap.String("backend_message", outcome.BackendMessage))
	metrics.SendsTotal.WithLabelValues(metrics.SendAIFailed).Inc()
	return SendResult{Outcome: OutcomeAIFailed}
}

// resolveTransportFailure marks the pending slot failed and replaces the
// thinking placeholder with a system error built from a best-effort
// extraction of the backend's error string.
func (e *Engine) resolveTransportFailure(pendingID, thinkingID string, err error) SendResult {
	e.mutateEntry(pendingID, func(entry *Entry) {
		entry.IsSending = false
		entry.IsSuccessful = boolPtr(false)
	})

	raw := err.Error()
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		raw = apiErr.Message
	}
	e.replaceEntry(thinkingID, e.systemErrorEntry(e.msgs.UserMessage(raw)))

	e.logger.Error("failed to send message", zap.Error(err))
	metrics.SendsTotal.WithLabelValues(metrics.SendTransport).Inc()
	return SendResult{Outcome: OutcomeTransport}
}

// confirmVisitorSlot resolves the pending slot with the backend record
// when one came back, or confirms the local copy otherwise. The slot's
// array position is preserved either way.
func (e *Engine) confirmVisitorSlot(pendingID string, record *model.Message) {
	if record != nil {
		confirmed := Normalize(*record, e.now())
		if confirmed.ID == "" {
			confirmed.ID = pendingID
		}
		confirmed.IsSending = false
		confirmed.IsSuccessful = boolPtr(true)
		e.replaceEntry(pendingID, confirmed)
		return
	}
	e.mutateEntry(pendingID, func(entry *Entry) {
		entry.IsSending = false
		entry.IsSuccessful = boolPtr(true)
	})
}

func (e *Engine) systemErrorEntry(text string) Entry {
	conversationUUID := ""
	if e.conversation != nil {
		conversationUUID = e.conversation.UUID
	}
	return Entry{
		ID:               "error-" + e.newID(),
		ConversationUUID: conversationUUID,
		Sender:           model.SenderSystem,
		Engine:           model.SenderSystem,
		MessageType:      model.TypeError,
		Text:             text,
		Timestamp:        e.now(),
		IsSuccessful:     boolPtr(false),
	}
}

// ensureTodayMarker inserts today's date marker at the head of the
// timeline if the day has none yet. At most one marker exists per
// calendar day.
func (e *Engine) ensureTodayMarker(conversationUUID string) {
	today := localDate(e.now())
	for _, entry := range e.entries {
		if entry.IsDateMarker() && entry.Text == today {
			return
		}
	}
	marker := dateMarker(conversationUUID, e.now())
	e.entries = append([]Entry{marker}, e.entries...)
}

func (e *Engine) replaceEntry(id string, entry Entry) {
	for i := range e.entries {
		if e.entries[i].ID == id {
			e.entries[i] = entry
			return
		}
	}
}

func (e *Engine) mutateEntry(id string, fn func(*Entry)) {
	for i := range e.entries {
		if e.entries[i].ID == id {
			fn(&e.entries[i])
			return
		}
	}
}

// normalizePage maps raw records and restores ascending order; ties keep
// their arrival order.
func (e *Engine) normalizePage(items []model.Message) []Entry {
	entries := make([]Entry, 0, len(items))
	now := e.now()
	for _, item := range items {
		entries = append(entries, Normalize(item, now))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}
