package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to the kernel HTTP API.
type Client struct {
	baseURL    string
	actor      string
	roles      string
	httpClient *http.Client
}

// NewClient creates a client for the kernel at baseURL.
func NewClient(baseURL, actor, roles string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		actor:      actor,
		roles:      roles,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx kernel response.
type APIError struct {
	Status int
	Body   map[string]any
}

func (e *APIError) Error() string {
	if msg, ok := e.Body["error"].(string); ok {
		return fmt.Sprintf("kernel returned %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("kernel returned %d", e.Status)
}

// Do sends body (if any) to path and decodes the JSON response.
func (c *Client) Do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.actor != "" {
		req.Header.Set("X-Actor-Id", c.actor)
		req.Header.Set("X-Actor-Type", "human")
	}
	if c.roles != "" {
		req.Header.Set("X-Actor-Roles", c.roles)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: out}
	}
	return out, nil
}

// Watch streams observe notifications to fn until ctx ends or the
// connection drops. An empty sessionID watches every session.
func (c *Client) Watch(ctx context.Context, sessionID string, fn func(data []byte) error) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/observe/ws"
	if sessionID != "" {
		u.RawQuery = url.Values{"session_id": {sessionID}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := fn(data); err != nil {
			return err
		}
	}
}
