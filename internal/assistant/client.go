// Package assistant calls the external assistant function. The function
// is a black box: it returns a response string plus a list of already
// validated side-effect instructions; no model logic lives here.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avoronova/FinSync/internal/models"
)

// Request is the payload sent to the assistant function.
type Request struct {
	OwnerID string  `json:"ownerId"`
	Message string  `json:"message"`
	Context Context `json:"context"`
}

// Context carries the finance state the assistant answers from.
type Context struct {
	RecentExpenses []models.Expense `json:"recentExpenses"`
	ActiveBudgets  []models.Budget  `json:"activeBudgets"`
	People         []models.Person  `json:"people"`
}

// Response is what the assistant function returns.
type Response struct {
	Response        string                `json:"response"`
	ExecutedActions []models.ActionResult `json:"executedActions,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
}

// Client talks HTTP to the assistant endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a Client for the given endpoint. timeout bounds the
// whole round trip.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Ask sends one message with its context and decodes the reply.
func (c *Client) Ask(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("assistant call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assistant call: unexpected status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
