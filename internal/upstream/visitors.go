package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/embedchat/widget-gateway/internal/model"
)

// VisitorDirectory creates, fetches, and deletes visitor records.
type VisitorDirectory interface {
	// Create registers a new visitor and returns its record.
	Create(ctx context.Context) (*model.Visitor, error)
	// GetByUUID returns the visitor, or (nil, nil) when it does not exist.
	GetByUUID(ctx context.Context, uuid string) (*model.Visitor, error)
	// Delete removes the visitor upstream. False means it was not found.
	Delete(ctx context.Context, uuid string) (bool, error)
}

// HTTPVisitors is the HTTP-backed visitor directory.
type HTTPVisitors struct {
	client *Client
}

// NewVisitors creates a visitor directory over the given client.
func NewVisitors(client *Client) *HTTPVisitors {
	return &HTTPVisitors{client: client}
}

func (d *HTTPVisitors) Create(ctx context.Context) (*model.Visitor, error) {
	env, err := d.client.post(ctx, "/visitors", map[string]any{}, "visitors.create")
	if err != nil {
		return nil, err
	}

	var visitor model.Visitor
	if err := json.Unmarshal(env.Data, &visitor); err != nil || visitor.UUID == "" {
		return nil, fmt.Errorf("visitor create returned no usable record")
	}
	return &visitor, nil
}

func (d *HTTPVisitors) GetByUUID(ctx context.Context, uuid string) (*model.Visitor, error) {
	env, err := d.client.get(ctx, "/visitors/"+uuid, "visitors.get")
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var visitor model.Visitor
	if err := json.Unmarshal(env.Data, &visitor); err != nil || visitor.UUID == "" {
		return nil, nil
	}
	return &visitor, nil
}

func (d *HTTPVisitors) Delete(ctx context.Context, uuid string) (bool, error) {
	env, err := d.client.del(ctx, "/visitors/"+uuid, "visitors.delete")
	if err != nil {
		if NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return env.Status == "success", nil
}
