// Package advisor is the client for the optional external advisory
// collaborator. It is deliberately thin: the engine never depends on
// it, and every failure collapses into a single unavailable signal.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"billbook/internal/core"
)

// Client talks to the advisory service. The zero value (no base URL)
// is a valid, permanently unavailable client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates an advisor client. An empty baseURL disables it.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether an advisory service is configured.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

type askRequest struct {
	Question string `json:"question"`
	Context  any    `json:"context,omitempty"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// Ask forwards a question, optionally with a summary context document,
// and returns the advisor's answer. A disabled or unreachable service
// yields ErrAdvisorUnavailable, never a hard failure.
func (c *Client) Ask(ctx context.Context, question string, summary any) (string, error) {
	if !c.Enabled() {
		return "", core.ErrAdvisorUnavailable
	}
	body, err := json.Marshal(askRequest{Question: question, Context: summary})
	if err != nil {
		return "", fmt.Errorf("marshal advisor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Advisor unreachable", "error", err)
		return "", core.ErrAdvisorUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Advisor returned error status", "status", resp.StatusCode)
		return "", core.ErrAdvisorUnavailable
	}

	var out askResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Warn("Advisor returned malformed response", "error", err)
		return "", core.ErrAdvisorUnavailable
	}
	return out.Answer, nil
}
