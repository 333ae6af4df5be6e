/*
Package main is the entry point for the WeTalk chat server.

It loads configuration, initializes the global logging system, wires the
credential store, history store, and presence registry together, starts the
HTTP server exposing the auth and chat WebSocket endpoints, and handles
operating system interrupt signals for graceful shutdown.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wetalk/internal/app/account"
	"wetalk/internal/app/chat"
	"wetalk/internal/app/history"
	"wetalk/internal/configs"
	"wetalk/internal/handler"
	"wetalk/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("history_backend", cfg.HistoryBackend).
		Bool("durable_accounts", cfg.DatabaseURL != "").
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := chat.NewRegistry()

	historyStore, err := history.NewStore(history.ServiceConfig{
		Backend:           cfg.HistoryBackend,
		Dir:               cfg.HistoryDir,
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		logx.Fatal(err, "Failed to initialize history store")
	}

	var accounts account.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := account.Open(cfg.DatabaseURL, registry)
		if err != nil {
			logx.Fatal(err, "Failed to initialize account store")
		}
		defer pgStore.Close()
		accounts = pgStore
	} else {
		accounts = account.NewMemoryStore(registry)
	}

	chatRouter := chat.NewRouter(registry, historyStore, cfg.TicketSecret)

	router := handler.Router(&handler.AppDeps{
		Config:   cfg,
		Router:   chatRouter,
		Accounts: accounts,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("WeTalk Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
