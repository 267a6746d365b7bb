// Package main is the entry point for the chat gateway API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/taskboard-ai/chat-gateway/internal/config"
	"github.com/taskboard-ai/chat-gateway/internal/handler"
	"github.com/taskboard-ai/chat-gateway/internal/keystore"
	"github.com/taskboard-ai/chat-gateway/internal/middleware"
	natsclient "github.com/taskboard-ai/chat-gateway/internal/nats"
	"github.com/taskboard-ai/chat-gateway/internal/service"
	"github.com/taskboard-ai/chat-gateway/pkg/logger"
	"github.com/taskboard-ai/chat-gateway/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat gateway")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS when configured. Without it the gateway still runs:
	// keys live in memory and no audit records are written.
	var (
		nc       *natsclient.Client
		keys     keystore.Store
		eventLog *natsclient.EventLog
	)
	if cfg.NATSURL != "" {
		nc, err = natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer nc.Close()

		eventLog = natsclient.NewEventLog(nc)
		if err := eventLog.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure audit stream", zap.Error(err))
			os.Exit(1)
		}

		keys, err = keystore.NewNATSKV(ctx, nc.JetStream())
		if err != nil {
			log.Error("failed to create key store", zap.Error(err))
			os.Exit(1)
		}
	} else {
		log.Warn("NATS not configured, using in-memory key store")
		keys = keystore.NewMemory()
	}

	// Initialize services
	conversationSvc := service.NewConversationService(log)
	chatSvc := service.NewChatService(keys, conversationSvc, eventLog, cfg.DefaultProvider, cfg.MaxTokens, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(nc)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	keysHandler := handler.NewKeysHandler(keys, log)
	toolsHandler := handler.NewToolsHandler()
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// AI routes with authentication
	r.Route("/api/ai", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/chat", chatHandler.Stream)

		r.Get("/keys", keysHandler.List)
		r.Post("/keys", keysHandler.Set)

		// Tool catalog introspection
		r.Get("/tools", toolsHandler.Catalog)
		r.Get("/tools/openai", toolsHandler.OpenAI)
		r.Get("/tools/anthropic", toolsHandler.Anthropic)
		r.Get("/tools/gemini", toolsHandler.Gemini)
	})

	// Conversation metadata
	r.Route("/api/v1/conversations", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/", conversationHandler.Create)
		r.Get("/", conversationHandler.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", conversationHandler.Get)
			r.Put("/", conversationHandler.Update)
			r.Delete("/", conversationHandler.Delete)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
