// Package devstub is an in-memory conversational backend for local
// development. It speaks the same envelope protocol the gateway's
// upstream client expects, so a gateway pointed at it behaves exactly as
// it would against the real platform.
package devstub

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embedchat/widget-gateway/internal/model"
)

// Store holds visitors, conversations, and messages in memory.
type Store struct {
	mu            sync.Mutex
	visitors      map[string]*model.Visitor
	conversations map[string]*model.Conversation
	// messages are keyed by conversation UUID, ascending by ID.
	messages map[string][]model.Message
	nextID   int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		visitors:      make(map[string]*model.Visitor),
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		nextID:        1,
	}
}

// CreateVisitor creates a new visitor.
func (s *Store) CreateVisitor() *model.Visitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &model.Visitor{
		UUID:      uuid.NewString(),
		CreatedAt: model.FlexTime{Time: time.Now()},
	}
	s.visitors[v.UUID] = v
	return v
}

// GetVisitor returns a visitor by UUID, or nil.
func (s *Store) GetVisitor(uuid string) *model.Visitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visitors[uuid]
}

// DeleteVisitor removes a visitor and its conversations. Returns false if
// the visitor does not exist.
func (s *Store) DeleteVisitor(uuid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visitors[uuid]; !ok {
		return false
	}
	delete(s.visitors, uuid)
	for cuuid, conv := range s.conversations {
		if conv.VisitorUUID == uuid {
			delete(s.conversations, cuuid)
			delete(s.messages, cuuid)
		}
	}
	return true
}

// CreateConversation creates a conversation for a visitor. Returns nil if
// the visitor does not exist.
func (s *Store) CreateConversation(visitorUUID string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visitors[visitorUUID]; !ok {
		return nil
	}
	c := &model.Conversation{
		UUID:        uuid.NewString(),
		VisitorUUID: visitorUUID,
		Status:      "active",
		StartedAt:   model.FlexTime{Time: time.Now()},
		UpdatedAt:   model.FlexTime{Time: time.Now()},
	}
	s.conversations[c.UUID] = c
	return c
}

// GetConversation returns a conversation by UUID, or nil.
func (s *Store) GetConversation(uuid string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[uuid]
}

// ActiveConversation returns the visitor's most recently updated active
// conversation, or nil.
func (s *Store) ActiveConversation(visitorUUID string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active *model.Conversation
	for _, conv := range s.conversations {
		if conv.VisitorUUID != visitorUUID || conv.Status != "active" {
			continue
		}
		if active == nil || conv.UpdatedAt.After(active.UpdatedAt.Time) {
			active = conv
		}
	}
	return active
}

// ListConversations returns the visitor's conversations, most recently
// updated first.
func (s *Store) ListConversations(visitorUUID string, limit, offset int) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Conversation
	for _, conv := range s.conversations {
		if conv.VisitorUUID == visitorUUID {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt.Time)
	})

	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AppendMessage stores a message in a conversation and returns the stored
// copy. The conversation's title is derived from the first visitor message
// and its updated-at bumped.
func (s *Store) AppendMessage(conversationUUID string, msg model.Message) *model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationUUID]
	if !ok {
		return nil
	}

	msg.ID = s.nextID
	s.nextID++
	msg.ConversationUUID = conversationUUID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = model.FlexTime{Time: time.Now()}
	}
	s.messages[conversationUUID] = append(s.messages[conversationUUID], msg)

	conv.UpdatedAt = model.FlexTime{Time: time.Now()}
	if conv.Title == "" && msg.Sender == model.SenderVisitor {
		conv.Title = deriveTitle(msg.MessageContent)
	}
	return &msg
}

// History returns up to limit messages older than beforeID (all newest
// when beforeID is zero), in ascending order, plus the pagination cursor.
func (s *Store) History(conversationUUID string, limit int, beforeID int64) ([]model.Message, bool, *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.messages[conversationUUID]
	var window []model.Message
	for _, msg := range all {
		if beforeID == 0 || msg.ID < beforeID {
			window = append(window, msg)
		}
	}

	hasMore := false
	if limit > 0 && len(window) > limit {
		hasMore = true
		window = window[len(window)-limit:]
	}

	var nextBefore *int64
	if hasMore && len(window) > 0 {
		id := window[0].ID
		nextBefore = &id
	}
	return window, hasMore, nextBefore
}

// deriveTitle truncates the first message into a conversation title.
func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if runes := []rune(title); len(runes) > 50 {
		title = strings.TrimSpace(string(runes[:50])) + "..."
	}
	return title
}
