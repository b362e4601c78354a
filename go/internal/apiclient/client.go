// Package apiclient performs game mutations over the REST API. Realtime
// state arrives over the socket; this client only writes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Riqtu/hohma-sync/go/internal/models"
)

type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetToken installs the bearer token used on every request.
func (c *Client) SetToken(token string) {
	c.headers["Authorization"] = "Bearer " + token
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return responseBody, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	body, err := c.makeRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CreateItem adds an item to the session and returns the stored row.
func (c *Client) CreateItem(ctx context.Context, sessionID string, item models.Item) (*models.Item, error) {
	item.SessionID = sessionID
	var created models.Item
	if err := c.postJSON(ctx, "/sectors", item, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateItem replaces the stored item with the given one.
func (c *Client) UpdateItem(ctx context.Context, item models.Item) (*models.Item, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	body, err := c.makeRequest(ctx, http.MethodPut, "/sectors/"+item.ID, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	var updated models.Item
	if err := json.Unmarshal(body, &updated); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &updated, nil
}

// DeleteItem removes the item. The socket broadcast carries the change back.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	_, err := c.makeRequest(ctx, http.MethodDelete, "/sectors/"+itemID, nil)
	return err
}

// PlaceWager stakes coins on one item of the session.
func (c *Client) PlaceWager(ctx context.Context, wager models.Wager) (*models.Wager, error) {
	var placed models.Wager
	if err := c.postJSON(ctx, "/bets", wager, &placed); err != nil {
		return nil, err
	}
	return &placed, nil
}

// PayoutWagers settles all wagers on the session against the winning item.
func (c *Client) PayoutWagers(ctx context.Context, sessionID, winningItemID string) error {
	payload := map[string]string{
		"wheelId":  sessionID,
		"sectorId": winningItemID,
	}
	return c.postJSON(ctx, "/bets/payout", payload, nil)
}
