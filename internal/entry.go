// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/denote-reconcile/internal/api"
	"github.com/starford/denote-reconcile/internal/journal"
	"github.com/starford/denote-reconcile/internal/noterepo"
	"github.com/starford/denote-reconcile/internal/passservice"
	"github.com/starford/denote-reconcile/internal/reconcile"
	"github.com/starford/denote-reconcile/internal/sse"
	"github.com/starford/denote-reconcile/internal/storage"
	"github.com/starford/denote-reconcile/internal/watch"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	store   *storage.FS
	journal *journal.DB
	svc     *passservice.Service
}

func (rt *runtime) Close() {
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("journal close failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout, output: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup initializes logging, storage, the journal and the pass service.
func (a *application) setup() (*runtime, error) {
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("corpus_path", cfg.Corpus.Path),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Corpus.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, store: store}

	var js journal.Store
	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		rt.journal = db
		js = db
	}

	repo := noterepo.New(store, cfg.Corpus.CounterFile, logger)
	engine := reconcile.New(repo, cfg.Corpus.Path, logger)
	rt.svc = passservice.New(engine, cfg.ReconcileOptions(a.dryRun), js, logger)
	return rt, nil
}

// passEvent is the SSE payload of a finished pass.
type passEvent struct {
	PassID  int64            `json:"pass_id,omitempty"`
	Dir     string           `json:"dir"`
	DryRun  bool             `json:"dry_run"`
	Changes int              `json:"changes"`
	Counts  reconcile.Counts `json:"counts"`
	Error   string           `json:"error,omitempty"`
}

func publishPass(broker *sse.Broker) passservice.Listener {
	return func(res passservice.Result) {
		r := res.Report
		if r == nil {
			return
		}
		broker.PublishPass(passEvent{
			PassID:  res.PassID,
			Dir:     r.Dir,
			DryRun:  r.DryRun,
			Changes: r.Changes(),
			Counts:  r.Counts,
			Error:   r.Error,
		}, r.Error != "")
	}
}

// watchCorpus re-runs passes on corpus changes until ctx is cancelled.
func (rt *runtime) watchCorpus(ctx context.Context, dryRun bool, onChange func(string)) error {
	return watch.Watch(ctx, rt.cfg.Corpus.Path, watch.Options{
		Debounce: rt.cfg.Watch.Debounce,
		Logger:   rt.logger,
		OnChange: onChange,
		Trigger: func(ctx context.Context) {
			if _, err := rt.svc.Reconcile(ctx, dryRun); err != nil {
				rt.logger.Error("watch: pass failed", slog.String("error", err.Error()))
			}
		},
	})
}

// Run starts the HTTP server with the optional corpus watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	logger := rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	rt.svc.OnPass(publishPass(broker))

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return rt.watchCorpus(gCtx, app.dryRun, broker.PublishCorpusChange)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")

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

// errShutdown cancels the group's context so that long-running members
// such as the watcher stop along with the server.
var errShutdown = errors.New("shutdown")

// waitForShutdown blocks until SIGINT, SIGTERM or ctx cancellation.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}
