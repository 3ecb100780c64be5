// Package protocol defines the JSON messages exchanged with clients.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Auth reply values.
const (
	AuthOK   = "ok"
	AuthFail = "fail"
)

// Inbound is a message received from a client over the WebSocket.
type Inbound struct {
	// Password is the shared secret; every update carries it.
	Password string `json:"password"`

	// Content is the full replacement document. Nil means the field was
	// absent and nothing should change.
	Content *string `json:"content,omitempty"`

	// Test requests an authentication probe instead of an update.
	Test bool `json:"test,omitempty"`
}

// IsProbe reports whether the message only asks for a credential check.
func (m Inbound) IsProbe() bool {
	return m.Test
}

// ContentMessage carries the current document. It is sent on connect, on
// every broadcast, and by the snapshot read endpoint.
type ContentMessage struct {
	Content string `json:"content"`
}

// AuthReply answers a probe. The submitted password is never echoed back.
type AuthReply struct {
	Auth  string `json:"auth"`
	Error string `json:"error,omitempty"`
}

// VerifyRequest is the body of the credential verification endpoint.
type VerifyRequest struct {
	Password string `json:"password"`
}

// VerifyResponse is returned by the credential verification endpoint. Error
// is set only when the server has no secret configured.
type VerifyResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Decode parses an inbound client message.
func Decode(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("malformed message: %w", err)
	}
	return msg, nil
}

// EncodeContent marshals a ContentMessage for content.
func EncodeContent(content string) ([]byte, error) {
	return json.Marshal(ContentMessage{Content: content})
}
