/*
Package handler provides the HTTP surface of the chat server.

This file contains the WebSocket handlers for the two endpoints. Each
handler rate-limits the client IP, upgrades the connection, and runs the
session's write pump alongside the blocking read pump.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"wetalk/internal/app/chat"
	"wetalk/internal/pkg/errs"
	"wetalk/internal/pkg/limiter"
	"wetalk/internal/pkg/logx"
	"wetalk/internal/pkg/resp"
)

// HandleAuthSocket serves the auth endpoint: login and register frames
// against the credential store.
func HandleAuthSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.AllowRequest(r) {
			logx.Warn("Auth connection rejected: Rate limit exceeded.", "remote_addr", r.RemoteAddr)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade auth connection to WebSocket")
			return
		}

		session := chat.NewAuthSession(conn, deps.Accounts, deps.Config.TicketSecret)

		go session.WritePump()

		session.ReadPump()
	}
}

// HandleChatSocket serves the chat endpoint: presence binding and message
// routing. The first accepted frame must be add_user carrying a session
// ticket issued at login.
func HandleChatSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.AllowRequest(r) {
			logx.Warn("Chat connection rejected: Rate limit exceeded.", "remote_addr", r.RemoteAddr)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade chat connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Router, conn)

		go client.WritePump()

		client.ReadPump()
	}
}
