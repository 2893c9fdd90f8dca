package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/barlive/barsync/internal/model"
)

// ordersResponse is the envelope the platform wraps list responses in.
type ordersResponse struct {
	Orders []model.OrderPatch `json:"orders"`
}

// ListOrders fetches the current order set. Branches restricts the result
// to the given branch identifiers; empty means all branches the token can
// see.
func (c *Client) ListOrders(ctx context.Context, branches []string) ([]model.OrderPatch, error) {
	query := url.Values{}
	for _, b := range branches {
		query.Add("branch", b)
	}

	body, err := c.doWithRetry(ctx, "/api/orders", query)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var resp ordersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse orders response: %w", err)
	}

	return resp.Orders, nil
}

// GetOrder fetches a single order by identifier.
func (c *Client) GetOrder(ctx context.Context, id string) (model.OrderPatch, error) {
	body, err := c.doWithRetry(ctx, "/api/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return model.OrderPatch{}, fmt.Errorf("get order %s: %w", id, err)
	}

	var patch model.OrderPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		return model.OrderPatch{}, fmt.Errorf("parse order response: %w", err)
	}

	return patch, nil
}
