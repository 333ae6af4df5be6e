/*
Package chat contains the core logic for presence tracking, message routing,
and the per-connection session loops.

This file defines the Client struct, one instance per chat-endpoint
connection. It runs the read and write pumps joined by the connection's
outbound mailbox and performs registry cleanup when the connection ends.
*/
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wetalk/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	// History records ride inside logout frames, so the limit is generous.
	maxMessageSize = 1 << 20

	// capacity of the outbound mailbox. Enqueue never blocks; frames are
	// dropped when a slow reader lets the mailbox fill up.
	sendQueueSize = 256

	// CloseCodeAlreadyConnected is a custom WebSocket Close Code (4000-4999
	// range) signalling that the bind was refused: either the username is
	// already connected or the session ticket did not check out.
	CloseCodeAlreadyConnected = 4001
)

// Client represents one active chat-endpoint connection.
type Client struct {
	// underlying WebSocket connection object.
	conn *websocket.Conn

	// the shared dispatcher handling this connection's frames.
	router *Router

	// the outbound mailbox, drained only by WritePump.
	send chan []byte

	// username bound via add_user; empty until a bind succeeds. Written
	// and read only on the reader goroutine.
	username string

	// image id carried by the session ticket that authorized the bind.
	imageID int64

	// sendMu serializes Enqueue against closeSend: other connections'
	// reader goroutines enqueue broadcasts while the owner tears down.
	sendMu sync.Mutex

	// sendClosed marks the mailbox closed for enqueue.
	sendClosed bool

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection.
func NewClient(router *Router, conn *websocket.Conn) *Client {
	connID := uuid.New().String()

	return &Client{
		conn:   conn,
		router: router,
		send:   make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().Str("conn_id", connID).Str("endpoint", "chat").Logger(),
	}
}

// Enqueue queues a frame for delivery without blocking. Frames are dropped
// when the mailbox is full or already closed, so one slow or dying reader
// cannot stall delivery to others.
func (c *Client) Enqueue(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, dropping frame.")
		return false
	}
}

// ReadPump reads inbound frames and hands them to the Router. It handles
// heartbeats and performs cleanup when the connection ends for any reason,
// including abrupt disconnects without a logout frame.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Read loop ended (client close/going away)")
			}
			break
		}

		c.router.HandleFrame(c, messageBytes)
	}
}

// cleanupOnDisconnect unbinds the connection's identity, closes the mailbox,
// and closes the socket once the read loop terminates.
func (c *Client) cleanupOnDisconnect() {
	c.router.HandleDisconnect(c)

	c.closeSend()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error")
	}
}

// WritePump drains the mailbox to the socket and sends periodic pings.
// It is the only goroutine that writes data frames to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error().Err(err).Msg("Error writing message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// RefuseBind closes the connection with a custom close frame after a
// rejected bind. The control frame write is safe alongside WritePump.
func (c *Client) RefuseBind(reason string) {
	c.logger.Warn().
		Int("close_code", CloseCodeAlreadyConnected).
		Str("reason", reason).
		Msg("Refusing bind and closing connection.")

	if c.conn != nil {
		closeMessage := websocket.FormatCloseMessage(CloseCodeAlreadyConnected, reason)

		if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to send close frame.")
		}
	}

	c.closeSend()
}

// closeSend closes the mailbox exactly once, letting WritePump finish.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}
