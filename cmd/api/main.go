// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
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

	"github.com/emberchat/emberchat/internal/config"
	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/handler"
	"github.com/emberchat/emberchat/internal/middleware"
	"github.com/emberchat/emberchat/internal/persist"
	"github.com/emberchat/emberchat/internal/service"
	"github.com/emberchat/emberchat/internal/session"
	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/internal/title"
	"github.com/emberchat/emberchat/pkg/logger"
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

	log.Info("starting API server")

	ctx := context.Background()

	// Open local persistence
	db, err := persist.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Errorw("failed to open persistence", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize the LLM gateway. A missing credential disables
	// network features but the server still serves stored state.
	var gw *gateway.Gateway
	gw, err = gateway.New(gateway.Options{
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		Timeout:         cfg.GatewayTimeout,
		Logger:          log,
	})
	if err != nil {
		var cfgErr *gateway.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Warnw("LLM features disabled", "reason", cfgErr.Reason)
			gw = nil
		} else {
			log.Errorw("failed to create gateway", "error", err)
			os.Exit(1)
		}
	}

	// Load conversation state
	st, err := store.New(ctx, store.Options{
		Persist:      db,
		Logger:       log,
		DefaultModel: cfg.DefaultModel,
	})
	if err != nil {
		log.Errorw("failed to load conversation state", "error", err)
		os.Exit(1)
	}

	// Initialize core services
	sessions := session.NewManager()
	var (
		titleGW  title.Completer
		streamer service.Streamer
	)
	if gw != nil {
		titleGW = gw
		streamer = gw
	}
	titles := title.NewScheduler(st, titleGW, cfg.TitleDebounce, log)
	defer titles.Stop()
	chatSvc := service.NewChatService(st, sessions, streamer, titles, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(db, gw)
	conversationHandler := handler.NewConversationHandler(chatSvc, log)
	messageHandler := handler.NewMessageHandler(chatSvc, log)
	generateHandler := handler.NewGenerateHandler(chatSvc, streamer, log)
	preferencesHandler := handler.NewPreferencesHandler(chatSvc, log)

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Browser proxy contract
	r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).
		Post("/api/generate", generateHandler.Generate)

	// REST API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/models", healthHandler.Models)

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", preferencesHandler.Get)
			r.Put("/", preferencesHandler.Put)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Delete("/", conversationHandler.Delete)
				r.Post("/activate", conversationHandler.Activate)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
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
		log.Infow("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
