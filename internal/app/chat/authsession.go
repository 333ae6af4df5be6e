/*
Package chat contains the core logic for presence tracking, message routing,
and the per-connection session loops.

This file defines the AuthSession, one instance per auth-endpoint
connection. It serves login and register requests against the credential
store and issues the session ticket a successful login carries to the chat
endpoint.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wetalk/internal/app/account"
	"wetalk/internal/pkg/auth/token"
	"wetalk/internal/pkg/errs"
	"wetalk/internal/pkg/logx"
)

const (
	// maxUsernameRunes caps username length at registration.
	maxUsernameRunes = 64

	// maxPasswordRunes caps password length at registration.
	maxPasswordRunes = 128
)

// AuthSession represents one active auth-endpoint connection.
type AuthSession struct {
	conn         *websocket.Conn
	accounts     account.Store
	ticketSecret string
	send         chan []byte
	sendOnce     sync.Once
	logger       zerolog.Logger
}

// NewAuthSession constructs an AuthSession for an upgraded connection.
func NewAuthSession(conn *websocket.Conn, accounts account.Store, ticketSecret string) *AuthSession {
	connID := uuid.New().String()

	return &AuthSession{
		conn:         conn,
		accounts:     accounts,
		ticketSecret: ticketSecret,
		send:         make(chan []byte, sendQueueSize),
		logger:       logx.Logger().With().Str("conn_id", connID).Str("endpoint", "auth").Logger(),
	}
}

// ReadPump reads login and register frames until the connection ends.
// Auth connections hold no presence binding, so teardown only closes the
// mailbox and the socket.
func (s *AuthSession) ReadPump() {
	defer func() {
		s.closeSend()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error")
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info().Err(err).Msg("Read loop ended (client close/going away)")
			}
			break
		}

		s.handleFrame(messageBytes)
	}
}

// WritePump drains the mailbox to the socket and sends periodic pings.
func (s *AuthSession) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					s.logger.Debug().Err(err).Msg("Error writing close message")
				}
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Error().Err(err).Msg("Error writing message")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// handleFrame parses one inbound frame and dispatches it. Malformed frames
// are dropped without closing the session.
func (s *AuthSession) handleFrame(raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("Client sent invalid JSON, frame dropped.")
		return
	}

	switch envelope.Type {
	case TypeLogin:
		s.handleLogin(raw)

	case TypeRegister:
		s.handleRegister(raw)

	default:
		s.logger.Warn().Str("msg_type", string(envelope.Type)).Msg("Unsupported frame type, dropped.")
	}
}

// handleLogin verifies credentials and replies with a login_response. On
// success the response carries the image id and the session ticket the chat
// endpoint will demand at bind time.
func (s *AuthSession) handleLogin(raw []byte) {
	var frame CredentialsFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Username == "" {
		s.logger.Warn().Msg("Malformed login frame dropped.")
		return
	}

	imageID, err := s.accounts.Verify(context.Background(), frame.Username, frame.Password)
	if err != nil {
		s.logger.Warn().Err(err).Str("username", frame.Username).Msg("Login refused.")
		s.sendJSON(LoginResponse{
			Type:    TypeLoginResponse,
			Success: false,
			Error:   loginErrorMessage(err),
		})
		return
	}

	ticket, err := token.Issue(frame.Username, imageID, s.ticketSecret)
	if err != nil {
		s.logger.Error().Err(err).Str("username", frame.Username).Msg("Ticket issuance failed.")
		s.sendJSON(LoginResponse{
			Type:    TypeLoginResponse,
			Success: false,
			Error:   errs.NewError(errs.ErrUnknown).Message,
		})
		return
	}

	s.logger.Info().Str("username", frame.Username).Int64("image_id", imageID).Msg("Login succeeded.")

	s.sendJSON(LoginResponse{
		Type:     TypeLoginResponse,
		Success:  true,
		Username: frame.Username,
		ImageID:  imageID,
		Token:    ticket,
	})
}

// handleRegister creates a new account and replies with a register_response.
func (s *AuthSession) handleRegister(raw []byte) {
	var frame CredentialsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.logger.Warn().Msg("Malformed register frame dropped.")
		return
	}

	if frame.Username == "" || utf8.RuneCountInString(frame.Username) > maxUsernameRunes {
		s.sendJSON(RegisterResponse{
			Type:  TypeRegisterResponse,
			Error: errs.NewError(errs.ErrInvalidUsername).Message,
		})
		return
	}

	if frame.Password == "" || utf8.RuneCountInString(frame.Password) > maxPasswordRunes {
		s.sendJSON(RegisterResponse{
			Type:  TypeRegisterResponse,
			Error: errs.NewError(errs.ErrInvalidPassword).Message,
		})
		return
	}

	if _, err := s.accounts.Register(context.Background(), frame.Username, frame.Password); err != nil {
		if errors.Is(err, account.ErrDuplicateUsername) {
			s.logger.Warn().Str("username", frame.Username).Msg("Registration conflict: username already exists.")
			s.sendJSON(RegisterResponse{
				Type:  TypeRegisterResponse,
				Error: errs.NewError(errs.ErrUserAlreadyExists).Message,
			})
			return
		}

		s.logger.Error().Err(err).Str("username", frame.Username).Msg("Registration failed.")
		s.sendJSON(RegisterResponse{
			Type:  TypeRegisterResponse,
			Error: errs.NewError(errs.ErrUnknown).Message,
		})
		return
	}

	s.logger.Info().Str("username", frame.Username).Msg("Registration succeeded.")

	s.sendJSON(RegisterResponse{
		Type:    TypeRegisterResponse,
		Success: true,
	})
}

// sendJSON marshals the response and enqueues it to the mailbox.
func (s *AuthSession) sendJSON(v any) {
	messageBytes, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal response.")
		return
	}

	select {
	case s.send <- messageBytes:
	default:
		s.logger.Warn().Int("queue_len", len(s.send)).Msg("Send queue full, dropping response.")
	}
}

// closeSend closes the mailbox exactly once, letting WritePump finish.
func (s *AuthSession) closeSend() {
	s.sendOnce.Do(func() {
		close(s.send)
	})
}

// loginErrorMessage maps credential store failures to client-facing messages.
func loginErrorMessage(err error) string {
	switch {
	case errors.Is(err, account.ErrUnknownUser):
		return errs.NewError(errs.ErrUserNotFound).Message
	case errors.Is(err, account.ErrWrongCredentials):
		return errs.NewError(errs.ErrInvalidCredentials).Message
	case errors.Is(err, account.ErrCurrentlyOnline):
		return errs.NewError(errs.ErrAlreadyOnline).Message
	default:
		return errs.NewError(errs.ErrUnknown).Message
	}
}
