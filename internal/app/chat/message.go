/*
Package chat contains the core logic for presence tracking, message routing,
and the per-connection session loops.

This file defines the wire protocol: every frame is a flat JSON object
whose "type" field selects the payload shape. Unknown fields are ignored
and malformed frames are dropped without closing the session.
*/
package chat

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a frame on either endpoint.
type MessageType string

// Client-originated frame types.
const (
	TypeLogin          MessageType = "login"
	TypeRegister       MessageType = "register"
	TypeAddUser        MessageType = "add_user"
	TypePrivateMessage MessageType = "private_message"
	TypePublicMessage  MessageType = "public_message"
	TypeLogout         MessageType = "logout"
)

// Server-originated frame types. TypeAddUser, TypePrivateMessage, and
// TypePublicMessage are reused for the corresponding events.
const (
	TypeLoginResponse    MessageType = "login_response"
	TypeRegisterResponse MessageType = "register_response"
	TypeHistory          MessageType = "history"
	TypeUserRemove       MessageType = "user_remove"
)

// Envelope sniffs the type of an inbound frame before the full payload is parsed.
type Envelope struct {
	Type MessageType `json:"type"`
}

// CredentialsFrame is the payload of login and register requests.
type CredentialsFrame struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AddUserFrame binds a connection to a username on the chat endpoint.
// Token must be a session ticket issued for the same username at login.
type AddUserFrame struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// PrivateMessageFrame requests unicast delivery to one present user.
type PrivateMessageFrame struct {
	To        string `json:"to"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PublicMessageFrame requests broadcast delivery to every present user.
type PublicMessageFrame struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// LogoutFrame ends a binding and hands the server the history record to persist.
type LogoutFrame struct {
	User    string          `json:"user"`
	History json.RawMessage `json:"history"`
}

// LoginResponse reports the outcome of a login request.
type LoginResponse struct {
	Type     MessageType `json:"type"`
	Success  bool        `json:"success"`
	Username string      `json:"username,omitempty"`
	ImageID  int64       `json:"image_id,omitempty"`
	Token    string      `json:"token,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// RegisterResponse reports the outcome of a register request.
type RegisterResponse struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
}

// PresencePair is one (username, image id) element of a presence list.
// The frontend indexes presence entries positionally, so the pair encodes
// as a two-element JSON array rather than an object.
type PresencePair struct {
	Username string
	ImageID  int64
}

// MarshalJSON encodes the pair as [username, imageID].
func (p PresencePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Username, p.ImageID})
}

// UnmarshalJSON decodes a [username, imageID] array.
func (p *PresencePair) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("presence pair must have 2 elements, got %d", len(raw))
	}

	name, ok := raw[0].(string)
	if !ok {
		return fmt.Errorf("presence pair username must be a string")
	}
	id, ok := raw[1].(float64)
	if !ok {
		return fmt.Errorf("presence pair image id must be a number")
	}

	p.Username = name
	p.ImageID = int64(id)
	return nil
}

// AddUserEvent announces the full presence list after a successful bind.
type AddUserEvent struct {
	Type  MessageType    `json:"type"`
	Users []PresencePair `json:"users"`
}

// HistoryEvent replays a stored history record to a newly bound connection.
type HistoryEvent struct {
	Type    MessageType     `json:"type"`
	History json.RawMessage `json:"history"`
}

// PrivateMessageEvent delivers a private message. From is always the
// sender's bound username, never the client-supplied field.
type PrivateMessageEvent struct {
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
}

// PublicMessageEvent delivers a broadcast message.
type PublicMessageEvent struct {
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
}

// UserRemoveEvent announces that a username left the presence list.
type UserRemoveEvent struct {
	Type MessageType `json:"type"`
	User string      `json:"user"`
}
