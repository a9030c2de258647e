// Package orderclient wraps the external order service REST API. The sync
// core only touches two operations: listing active orders and persisting a
// status change.
package orderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/appetiteclub/liveboard/internal/board"
)

// Client encapsulates HTTP interaction with the order service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// NewClient creates a client for the order service at baseURL. A small fixed
// retry budget covers transient transport hiccups; business rejections come
// back as plain errors.
func NewClient(baseURL, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
		token:      token,
	}
}

// ActiveOrders fetches the authoritative set of active orders.
func (c *Client) ActiveOrders(ctx context.Context) ([]board.Order, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("order service not configured")
	}

	url := c.baseURL + "/api/orders/active"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var payload struct {
		Orders []board.Order `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return payload.Orders, nil
}

// UpdateStatus persists a status change for one order. Transport errors and
// business rejections are returned the same way; the board treats both as
// "transition failed".
func (c *Client) UpdateStatus(ctx context.Context, orderID, status string) (*board.Order, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("order service not configured")
	}

	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/api/orders/%s/status", c.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status update rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var order board.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &order, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
