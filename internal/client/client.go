// Package client connects to a livedoc server.
package client

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/steveyegge/livedoc/internal/protocol"
)

// maxMessageBytes bounds a single document update received from the server.
const maxMessageBytes = 64 << 20

// Event is one message received from the server. Exactly one field is set.
type Event struct {
	Content *protocol.ContentMessage
	Auth    *protocol.AuthReply
}

// Client is a WebSocket connection to the sync endpoint.
type Client struct {
	ws *websocket.Conn
}

// Dial connects to the server at baseURL (http, https, ws or wss).
func Dial(ctx context.Context, baseURL string) (*Client, error) {
	wsURL, err := WebSocketURL(baseURL)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	ws.SetReadLimit(maxMessageBytes)

	return &Client{ws: ws}, nil
}

// Next blocks until the server sends a message.
func (c *Client) Next(ctx context.Context) (Event, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return Event{}, err
	}

	var raw struct {
		Content *string `json:"content"`
		Auth    *string `json:"auth"`
		Error   string  `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("malformed server message: %w", err)
	}

	switch {
	case raw.Auth != nil:
		return Event{Auth: &protocol.AuthReply{Auth: *raw.Auth, Error: raw.Error}}, nil
	case raw.Content != nil:
		return Event{Content: &protocol.ContentMessage{Content: *raw.Content}}, nil
	default:
		return Event{}, fmt.Errorf("unrecognized server message: %s", data)
	}
}

// NextContent skips auth replies and returns the next document content.
func (c *Client) NextContent(ctx context.Context) (string, error) {
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return "", err
		}
		if ev.Content != nil {
			return ev.Content.Content, nil
		}
	}
}

// Push sends a full-content update.
func (c *Client) Push(ctx context.Context, password, content string) error {
	return c.Send(ctx, protocol.Inbound{Password: password, Content: &content})
}

// Probe asks the server to check password without changing anything. The
// answer arrives as an Event with Auth set.
func (c *Client) Probe(ctx context.Context, password string) error {
	return c.Send(ctx, protocol.Inbound{Password: password, Test: true})
}

// ErrRejected is returned by Publish when the server refuses the password.
var ErrRejected = errors.New("update rejected")

// Authorize probes password and waits for the server's answer. Content
// broadcasts that arrive first are skipped.
func (c *Client) Authorize(ctx context.Context, password string) (protocol.AuthReply, error) {
	if err := c.Probe(ctx, password); err != nil {
		return protocol.AuthReply{}, err
	}
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return protocol.AuthReply{}, err
		}
		if ev.Auth != nil {
			return *ev.Auth, nil
		}
	}
}

// Publish checks password, pushes content, and waits until the server
// broadcasts it back. Updates with a bad password are dropped silently by
// the server, so the probe is what lets the caller see a rejection.
func (c *Client) Publish(ctx context.Context, password, content string) error {
	reply, err := c.Authorize(ctx, password)
	if err != nil {
		return err
	}
	if reply.Auth != protocol.AuthOK {
		return fmt.Errorf("%w: %s", ErrRejected, cmp.Or(reply.Error, "password incorrect"))
	}

	if err := c.Push(ctx, password, content); err != nil {
		return err
	}
	for {
		got, err := c.NextContent(ctx)
		if err != nil {
			return fmt.Errorf("no acknowledgement from server: %w", err)
		}
		if got == content {
			return nil
		}
	}
}

// Send writes an arbitrary JSON message.
func (c *Client) Send(ctx context.Context, v interface{}) error {
	return wsjson.Write(ctx, c.ws, v)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// Load fetches the current document over plain HTTP.
func Load(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/load", nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to load document: %s", resp.Status)
	}

	var msg protocol.ContentMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("failed to decode document: %w", err)
	}
	return msg.Content, nil
}

// Verify checks password against the server over plain HTTP.
func Verify(ctx context.Context, baseURL, password string) (protocol.VerifyResponse, error) {
	body, err := json.Marshal(protocol.VerifyRequest{Password: password})
	if err != nil {
		return protocol.VerifyResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/verify", bytes.NewReader(body))
	if err != nil {
		return protocol.VerifyResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return protocol.VerifyResponse{}, fmt.Errorf("failed to verify password: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.VerifyResponse{}, fmt.Errorf("failed to verify password: %s", resp.Status)
	}

	var out protocol.VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return protocol.VerifyResponse{}, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return out, nil
}

// WebSocketURL converts a server base URL into its /ws endpoint.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, baseURL)
	}

	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	}
	return u.String(), nil
}
