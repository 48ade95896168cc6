package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/embedchat/widget-gateway/internal/model"
)

// ConversationDirectory creates, fetches, and lists conversations.
type ConversationDirectory interface {
	Create(ctx context.Context, visitorUUID string) (*model.Conversation, error)
	// GetByUUID returns the conversation, or (nil, nil) when absent.
	GetByUUID(ctx context.Context, uuid string) (*model.Conversation, error)
	// GetActiveByVisitor returns the visitor's active conversation, or
	// (nil, nil) when the visitor has none.
	GetActiveByVisitor(ctx context.Context, visitorUUID string) (*model.Conversation, error)
	ListByVisitor(ctx context.Context, visitorUUID string, limit, offset int) ([]model.Conversation, error)
}

// HTTPConversations is the HTTP-backed conversation directory.
type HTTPConversations struct {
	client *Client
}

// NewConversations creates a conversation directory over the given client.
func NewConversations(client *Client) *HTTPConversations {
	return &HTTPConversations{client: client}
}

func (d *HTTPConversations) Create(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
	req := model.CreateConversationRequest{VisitorUUID: visitorUUID}
	env, err := d.client.post(ctx, "/conversations", req, "conversations.create")
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(env.Data, &conv); err != nil || conv.UUID == "" {
		return nil, fmt.Errorf("conversation create returned no usable record")
	}
	return &conv, nil
}

func (d *HTTPConversations) GetByUUID(ctx context.Context, uuid string) (*model.Conversation, error) {
	env, err := d.client.get(ctx, "/conversations/"+uuid, "conversations.get")
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(env.Data, &conv); err != nil || conv.UUID == "" {
		return nil, nil
	}
	return &conv, nil
}

// GetActiveByVisitor prefers the dedicated active endpoint. When the
// backend does not expose one (404), it falls back to listing and picking
// the most recently touched conversation. Transport and server errors
// propagate so the bootstrap can treat them as a stale-session signal.
func (d *HTTPConversations) GetActiveByVisitor(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
	env, err := d.client.get(ctx, "/conversations/visitor/"+visitorUUID+"/active", "conversations.active")
	if err == nil {
		var conv model.Conversation
		if jsonErr := json.Unmarshal(env.Data, &conv); jsonErr == nil && conv.UUID != "" {
			return &conv, nil
		}
		return nil, nil
	}
	if !NotFound(err) {
		return nil, err
	}

	conversations, err := d.ListByVisitor(ctx, visitorUUID, 10, 0)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return nil, nil
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return touchedAt(conversations[i]).After(touchedAt(conversations[j]))
	})
	return &conversations[0], nil
}

func (d *HTTPConversations) ListByVisitor(ctx context.Context, visitorUUID string, limit, offset int) ([]model.Conversation, error) {
	path := fmt.Sprintf("/conversations/visitor/%s?limit=%d&offset=%d", visitorUUID, limit, offset)
	env, err := d.client.get(ctx, path, "conversations.list")
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	// The backend answers with either a bare array or a paginated object.
	var items []model.Conversation
	if err := json.Unmarshal(env.Data, &items); err == nil {
		return items, nil
	}
	var page model.ConversationPage
	if err := json.Unmarshal(env.Data, &page); err == nil {
		return page.Items, nil
	}
	return nil, nil
}

func touchedAt(conv model.Conversation) time.Time {
	if !conv.UpdatedAt.IsZero() {
		return conv.UpdatedAt.Time
	}
	return conv.StartedAt.Time
}
