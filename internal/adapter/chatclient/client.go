// Package chatclient provides the HTTP client for the chat backend's streaming API.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/sse"
)

// Client is an HTTP client for the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new chat client. Streaming requests carry no client
// side timeout; bound them with the context instead.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// NewClientWithHTTP creates a client that uses the given http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	c := NewClient(baseURL)
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

// Stream posts a message to /api/chat/stream and dispatches every event to handler.
// Failing to reach the server, or a non-2xx status, is delivered to handler as a
// single transport ErrorFrame and returned as an error.
func (c *Client) Stream(ctx context.Context, req domain.ChatRequest, handler sse.Handler) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportFailure(handler, fmt.Errorf("failed to open stream: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return transportFailure(handler, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))))
	}

	if err := sse.Consume(resp.Body, handler); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}

func transportFailure(handler sse.Handler, cause error) error {
	if err := handler(domain.ErrorFrame{Message: sse.TransportErrorMessage, Transport: true}); err != nil {
		return err
	}
	return cause
}

// Chat posts a message to the non-streaming /api/chat endpoint.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out domain.ChatResponse
	if err := c.doJSON(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession tears down a server-side session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/session/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delete session returned status %d", resp.StatusCode)
	}
	return nil
}

// Health queries /api/health.
func (c *Client) Health(ctx context.Context) (*domain.HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out domain.HealthResponse
	if err := c.doJSON(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(httpReq *http.Request, out any) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
