/*
Package chat contains the core logic for presence tracking, message routing,
and the per-connection session loops.

This file defines the Router, the stateless dispatcher that turns parsed
inbound frames into registry operations and deliveries. Malformed frames
and unknown types are dropped without touching any state and without
closing the session.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"wetalk/internal/app/account"
	"wetalk/internal/app/history"
	"wetalk/internal/pkg/auth/token"
	"wetalk/internal/pkg/logx"
)

// Router dispatches chat-endpoint frames against the shared stores.
type Router struct {
	registry     *Registry
	history      history.Store
	ticketSecret string
	logger       zerolog.Logger
}

// NewRouter constructs a Router over the shared registry and history store.
func NewRouter(registry *Registry, historyStore history.Store, ticketSecret string) *Router {
	return &Router{
		registry:     registry,
		history:      historyStore,
		ticketSecret: ticketSecret,
		logger:       logx.Logger().With().Str("component", "Router").Logger(),
	}
}

// Registry exposes the presence registry, used as the PresenceChecker for
// credential verification.
func (rt *Router) Registry() *Registry {
	return rt.registry
}

// HandleFrame parses one inbound frame and dispatches it. Parse failure is
// never fatal to the session.
func (rt *Router) HandleFrame(c *Client, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		rt.logger.Warn().Err(err).Msg("Client sent invalid JSON, frame dropped.")
		return
	}

	switch envelope.Type {
	case TypeAddUser:
		rt.handleAddUser(c, raw)

	case TypePrivateMessage:
		rt.handlePrivateMessage(c, raw)

	case TypePublicMessage:
		rt.handlePublicMessage(c, raw)

	case TypeLogout:
		rt.handleLogout(c, raw)

	default:
		rt.logger.Warn().Str("msg_type", string(envelope.Type)).Msg("Unsupported frame type, dropped.")
	}
}

// handleAddUser validates the session ticket, binds the connection's
// identity, announces the new presence list, and replays stored history to
// the new connection.
func (rt *Router) handleAddUser(c *Client, raw []byte) {
	if c.username != "" {
		rt.logger.Warn().Str("username", c.username).Msg("Connection already bound, add_user dropped.")
		return
	}

	var frame AddUserFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Username == "" {
		rt.logger.Warn().Msg("Malformed add_user frame dropped.")
		return
	}

	claims, err := token.Parse(frame.Token, rt.ticketSecret)
	if err != nil || claims.Username != frame.Username {
		rt.logger.Warn().Str("username", frame.Username).Msg("add_user ticket rejected.")
		c.RefuseBind("authentication required")
		return
	}

	if err := rt.registry.Bind(frame.Username, claims.ImageID, c); err != nil {
		if errors.Is(err, ErrAlreadyPresent) {
			rt.logger.Warn().Str("username", frame.Username).Msg("Duplicate bind refused.")
			c.RefuseBind("already connected elsewhere")
			return
		}
		rt.logger.Error().Err(err).Str("username", frame.Username).Msg("Bind failed.")
		return
	}

	c.username = frame.Username
	c.imageID = claims.ImageID

	rt.logger.Info().Str("username", c.username).Int64("image_id", c.imageID).Msg("User joined.")

	rt.broadcast(AddUserEvent{
		Type:  TypeAddUser,
		Users: rt.presencePairs(),
	})

	rt.replayHistory(c)
}

// replayHistory delivers the stored record to the newly bound connection.
// A missing record is indistinguishable from an empty history; a read
// failure is treated the same way.
func (rt *Router) replayHistory(c *Client) {
	payload, err := rt.history.Read(context.Background(), c.username)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			rt.logger.Error().Err(err).Str("username", c.username).Msg("History read failed.")
		}
		return
	}

	rt.deliver(c, HistoryEvent{
		Type:    TypeHistory,
		History: payload,
	})
}

// handlePrivateMessage delivers a message to exactly one present user. An
// absent target means the message is silently dropped.
func (rt *Router) handlePrivateMessage(c *Client, raw []byte) {
	if c.username == "" {
		rt.logger.Warn().Msg("private_message before add_user dropped.")
		return
	}

	var frame PrivateMessageFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.To == "" {
		rt.logger.Warn().Msg("Malformed private_message frame dropped.")
		return
	}

	out, ok := rt.registry.Lookup(frame.To)
	if !ok {
		rt.logger.Debug().Str("to", frame.To).Msg("private_message target not present, dropped.")
		return
	}

	event := PrivateMessageEvent{
		Type:      TypePrivateMessage,
		From:      c.username,
		Message:   frame.Message,
		Timestamp: frame.Timestamp,
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		rt.logger.Error().Err(err).Msg("Failed to marshal private_message event.")
		return
	}

	out.Enqueue(messageBytes)
}

// handlePublicMessage broadcasts a message to every present user, the
// sender included.
func (rt *Router) handlePublicMessage(c *Client, raw []byte) {
	if c.username == "" {
		rt.logger.Warn().Msg("public_message before add_user dropped.")
		return
	}

	var frame PublicMessageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		rt.logger.Warn().Msg("Malformed public_message frame dropped.")
		return
	}

	rt.broadcast(PublicMessageEvent{
		Type:      TypePublicMessage,
		From:      c.username,
		Message:   frame.Message,
		Timestamp: frame.Timestamp,
	})
}

// handleLogout unbinds the connection's own identity, persists the supplied
// history record, and announces the removal. The bound username is
// authoritative; the frame's user field is ignored so one client cannot
// evict another.
func (rt *Router) handleLogout(c *Client, raw []byte) {
	if c.username == "" {
		rt.logger.Warn().Msg("logout before add_user dropped.")
		return
	}

	var frame LogoutFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		rt.logger.Warn().Msg("Malformed logout frame dropped.")
		return
	}

	username := c.username
	c.username = ""
	c.imageID = 0

	removed := rt.registry.Unbind(username)

	if len(frame.History) > 0 {
		if err := rt.history.Write(context.Background(), username, frame.History); err != nil {
			// Persistence failure never blocks the logout flow.
			rt.logger.Error().Err(err).Str("username", username).Msg("History write failed.")
		}
	}

	if removed {
		rt.logger.Info().Str("username", username).Msg("User logged out.")
		rt.broadcast(UserRemoveEvent{
			Type: TypeUserRemove,
			User: username,
		})
	}
}

// HandleDisconnect is the mandatory cleanup path for connections that end
// without a logout frame. No history is written because the record only
// exists client-side.
func (rt *Router) HandleDisconnect(c *Client) {
	if c.username == "" {
		return
	}

	username := c.username
	c.username = ""
	c.imageID = 0

	if rt.registry.Unbind(username) {
		rt.logger.Info().Str("username", username).Msg("User disconnected without logout.")
		rt.broadcast(UserRemoveEvent{
			Type: TypeUserRemove,
			User: username,
		})
	}
}

// presencePairs builds the presence list for add_user events: the bootstrap
// broadcast anchor followed by every live binding in image-id order.
func (rt *Router) presencePairs() []PresencePair {
	snapshot := rt.registry.Snapshot()

	pairs := make([]PresencePair, 0, len(snapshot)+1)
	pairs = append(pairs, PresencePair{
		Username: account.BootstrapUsername,
		ImageID:  account.BootstrapImageID,
	})

	for _, entry := range snapshot {
		pairs = append(pairs, PresencePair{
			Username: entry.Username,
			ImageID:  entry.ImageID,
		})
	}

	return pairs
}

// broadcast marshals the event once and enqueues it to every live binding.
// The registry lock is released before any enqueue happens.
func (rt *Router) broadcast(event any) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		rt.logger.Error().Err(err).Msg("Failed to marshal broadcast event.")
		return
	}

	for _, entry := range rt.registry.Snapshot() {
		entry.Out.Enqueue(messageBytes)
	}
}

// deliver marshals the event and enqueues it to a single connection.
func (rt *Router) deliver(c *Client, event any) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		rt.logger.Error().Err(err).Msg("Failed to marshal event.")
		return
	}

	c.Enqueue(messageBytes)
}
