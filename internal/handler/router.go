/*
Package handler provides the HTTP surface of the chat server: the health
endpoint and the two WebSocket endpoints for authentication and chat.

This file defines the main Router, applying logging, CORS, and recovery
middleware before delegating to the WebSocket handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"wetalk/internal/pkg/limiter"
	"wetalk/internal/pkg/logx"
	"wetalk/internal/pkg/resp"
)

const (
	// AuthRate limits new auth-endpoint connections per IP per second.
	AuthRate = 1.0
	// AuthBurst is the auth-endpoint connection burst per IP.
	AuthBurst = 10

	// ChatRate limits new chat-endpoint connections per IP per second.
	ChatRate = 1.0
	// ChatBurst is the chat-endpoint connection burst per IP.
	ChatBurst = 10
)

// Router sets up the HTTP routing table (chi.Router) for the application:
// per-IP rate limiters for both WebSocket endpoints, CORS, global
// middleware, and the health endpoint.
func Router(deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(rate.Limit(AuthRate), AuthBurst)
	chatLimiter := limiter.NewIPRateLimiter(rate.Limit(ChatRate), ChatBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "WeTalk Server",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Get("/ws/login", HandleAuthSocket(wsUpgrader, authLimiter, deps))
	r.Get("/ws/chat", HandleChatSocket(wsUpgrader, chatLimiter, deps))

	return r
}
