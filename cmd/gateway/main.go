// Package main is the entry point for the widget gateway.
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

	"github.com/embedchat/widget-gateway/internal/config"
	"github.com/embedchat/widget-gateway/internal/events"
	"github.com/embedchat/widget-gateway/internal/handler"
	"github.com/embedchat/widget-gateway/internal/middleware"
	"github.com/embedchat/widget-gateway/internal/upstream"
	"github.com/embedchat/widget-gateway/pkg/logger"
	"github.com/embedchat/widget-gateway/pkg/tracing"
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

	log.Info("starting widget gateway")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "widget-gateway", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS if configured. Eventing is optional: the gateway's
	// user-facing path never depends on it.
	var eventsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		eventsClient, err = events.Connect(events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			defer eventsClient.Close()
			publisher = events.NewPublisher(eventsClient, log)
			if err := publisher.EnsureStream(ctx); err != nil {
				log.Warn("failed to ensure events stream", zap.Error(err))
			}
		}
	}

	// Upstream chat backend directories
	upstreamClient := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, log)
	registry := handler.NewRegistry(handler.Deps{
		Visitors:      upstream.NewVisitors(upstreamClient),
		Conversations: upstream.NewConversations(upstreamClient),
		Messages:      upstream.NewMessages(upstreamClient),
		Events:        publisher,
		Logger:        log,
		Config:        cfg,
	})

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(eventsClient)
	sessionHandler := handler.NewSessionHandler(registry)
	timelineHandler := handler.NewTimelineHandler(registry)
	conversationHandler := handler.NewConversationHandler(registry)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
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

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/session", func(r chi.Router) {
			r.Post("/ensure", sessionHandler.Ensure)
			r.Post("/fresh", sessionHandler.Fresh)
			r.Delete("/", sessionHandler.Delete)
		})

		r.Route("/timeline", func(r chi.Router) {
			r.Get("/", timelineHandler.Get)
			r.Post("/messages", timelineHandler.Send)
			r.Post("/older", timelineHandler.Older)
		})

		r.Get("/conversations", conversationHandler.List)
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
