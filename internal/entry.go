// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nota/internal/ai"
	"github.com/starford/nota/internal/api"
	"github.com/starford/nota/internal/noteservice"
	"github.com/starford/nota/internal/prompts"
	"github.com/starford/nota/internal/session"
	"github.com/starford/nota/internal/sse"
	"github.com/starford/nota/internal/storage"
	"github.com/starford/nota/internal/store"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.owner == "" {
		app.owner = app.config.Auth.Owner
	}
	return app, nil
}

// setupLogger installs a structured JSON logger as the default.
func (a *application) setupLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// components are the collaborators shared by the server and the CLI commands.
type components struct {
	db      *store.DB
	prompts *prompts.Set
	ai      *ai.Client
	notes   *noteservice.Service
}

func (c *components) Close() {
	if c.db != nil {
		_ = c.db.Close()
	}
}

// open connects the store and builds the AI client. notifier may be nil.
func (a *application) open(logger *slog.Logger, notifier noteservice.Notifier) (*components, error) {
	cfg := a.config

	db, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	c := &components{db: db}

	var src storage.Provider
	if dir := cfg.AI.PromptsDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.Close()
			return nil, fmt.Errorf("create prompts dir: %w", err)
		}
		fs, err := storage.NewFS(dir)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init prompts storage: %w", err)
		}
		src = fs
	}
	set, err := prompts.NewSet(src, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	c.prompts = set

	c.ai = ai.New(cfg.AI.Client(), set, ai.WithLogger(logger))

	svcOpts := []noteservice.Option{noteservice.WithLogger(logger)}
	if notifier != nil {
		svcOpts = append(svcOpts, noteservice.WithNotifier(notifier))
	}
	c.notes = noteservice.NewService(db, svcOpts...)
	return c, nil
}

func (a *application) sessionOptions(logger *slog.Logger) []session.Option {
	return []session.Option{
		session.WithLogger(logger),
		session.WithMinSummaryLength(a.config.Session.MinSummaryLength),
	}
}

func writeStatus(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Run starts the HTTP server with the given options and blocks until ctx is
// cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.setupLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("ai_base_url", cfg.AI.BaseURL),
		slog.String("ai_model", cfg.AI.Model),
		slog.String("prompts_dir", cfg.AI.PromptsDir),
		slog.String("log_level", cfg.App.LogLevel.String()))
	if cfg.AI.APIKey == "" {
		logger.Warn("ai.api_key is empty; provider requests are sent without credentials")
	}

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.InvalidateThrottle)

	c, err := app.open(logger, broker)
	if err != nil {
		broker.Close()
		return err
	}
	defer c.Close()

	sessOpts := app.sessionOptions(logger)
	registry := session.NewRegistry(func() *session.Controller {
		return session.New(c.notes, c.ai, sessOpts...)
	}, cfg.Session.IdleTTL, session.WithRegistryLogger(logger))

	apiRouter := api.NewRouter(api.Deps{
		Notes:    c.notes,
		Sessions: registry,
		AI:       c.ai,
		Auth:     cfg.Auth.Authenticator(),
		Events:   broker,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		pingCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := c.db.Ping(pingCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Hot-reload prompt overrides.
	if dir := cfg.AI.PromptsDir; dir != "" {
		g.Go(func() error {
			if err := prompts.Watch(gCtx, c.prompts, dir, logger, nil); err != nil {
				logger.Warn("prompts watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Evict idle sessions.
	g.Go(func() error {
		return registry.Run(gCtx, cfg.Session.SweepInterval)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Closing the broker ends open event streams so Shutdown can drain.
		broker.Close()
		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once shutdown has finished, so the
// background loops stop too.
var errShutdown = errors.New("shutdown")
