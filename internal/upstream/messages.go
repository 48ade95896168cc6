package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/embedchat/widget-gateway/internal/model"
)

// MessageDirectory persists messages and serves cursor-paginated history.
type MessageDirectory interface {
	// CreateAndTriggerReply performs the single-call send: the backend
	// persists the visitor message, runs the AI, persists the reply, and
	// returns both — or reports a soft AI failure in the envelope.
	CreateAndTriggerReply(ctx context.Context, req model.CreateMessageRequest) (*model.SendOutcome, error)
	// History fetches up to limit messages strictly before beforeID
	// (0 means the newest window), oldest-first within the page.
	History(ctx context.Context, conversationUUID string, limit int, beforeID int64) (*model.HistoryPage, error)
}

// HTTPMessages is the HTTP-backed message directory.
type HTTPMessages struct {
	client *Client
}

// NewMessages creates a message directory over the given client.
func NewMessages(client *Client) *HTTPMessages {
	return &HTTPMessages{client: client}
}

func (d *HTTPMessages) CreateAndTriggerReply(ctx context.Context, req model.CreateMessageRequest) (*model.SendOutcome, error) {
	env, err := d.client.post(ctx, "/messages", req, "messages.create")
	if err != nil {
		return nil, err
	}
	return decodeSendOutcome(env), nil
}

// decodeSendOutcome maps the envelope's loosely shaped data field into one
// tagged outcome. Known shapes: a pair object {visitor_message, ai_message,
// error_message}, a single record (the AI reply on success, the persisted
// visitor message on soft failure), or an array of records.
func decodeSendOutcome(env *Envelope) *model.SendOutcome {
	outcome := &model.SendOutcome{
		AIFailed: env.Status == "warning" ||
			strings.Contains(strings.ToLower(env.Message), "ai response failed"),
		BackendMessage: env.Message,
	}

	if len(env.Data) == 0 {
		return outcome
	}

	var pair struct {
		VisitorMessage *model.Message `json:"visitor_message"`
		AIMessage      *model.Message `json:"ai_message"`
		ErrorMessage   *model.Message `json:"error_message"`
	}
	if err := json.Unmarshal(env.Data, &pair); err == nil &&
		(pair.VisitorMessage != nil || pair.AIMessage != nil || pair.ErrorMessage != nil) {
		outcome.Visitor = pair.VisitorMessage
		if pair.AIMessage != nil {
			outcome.AI = pair.AIMessage
		} else {
			outcome.AI = pair.ErrorMessage
		}
		return outcome
	}

	var list []model.Message
	if err := json.Unmarshal(env.Data, &list); err == nil && len(list) > 0 {
		if len(list) > 1 {
			outcome.Visitor = &list[0]
			outcome.AI = &list[len(list)-1]
		} else if outcome.AIFailed {
			outcome.Visitor = &list[0]
		} else {
			outcome.AI = &list[0]
		}
		return outcome
	}

	var single model.Message
	if err := json.Unmarshal(env.Data, &single); err == nil && single.Sender != "" {
		if outcome.AIFailed {
			outcome.Visitor = &single
		} else {
			outcome.AI = &single
		}
	}
	return outcome
}

func (d *HTTPMessages) History(ctx context.Context, conversationUUID string, limit int, beforeID int64) (*model.HistoryPage, error) {
	path := fmt.Sprintf("/messages/history?conversation_uuid=%s&limit=%d", conversationUUID, limit)
	if beforeID > 0 {
		path += fmt.Sprintf("&before_id=%d", beforeID)
	}

	env, err := d.client.get(ctx, path, "messages.history")
	if err != nil {
		return nil, err
	}

	var page model.HistoryPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode history page: %w", err)
	}
	return &page, nil
}
