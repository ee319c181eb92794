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

	"github.com/starford/vbsb/internal/api"
	"github.com/starford/vbsb/internal/bundler"
	"github.com/starford/vbsb/internal/history"
	"github.com/starford/vbsb/internal/mcpserver"
	"github.com/starford/vbsb/internal/pipeline"
	"github.com/starford/vbsb/internal/report"
	"github.com/starford/vbsb/internal/sse"
	"github.com/starford/vbsb/internal/storage"
	"github.com/starford/vbsb/internal/validator"
	"github.com/starford/vbsb/internal/watcher"
)

// components are the pieces shared by every run mode.
type components struct {
	logger  *slog.Logger
	store   *storage.FS
	valid   *validator.Validator
	history *history.DB
}

func (c *components) close() {
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			c.logger.Warn("close history failed", slog.String("error", err.Error()))
		}
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup initialises logging, storage, validation and history.
func (app *application) setup() (*components, error) {
	cfg := app.config

	// Structured JSON logger on stderr; stdout carries build reports.
	logger := slog.New(slog.NewJSONHandler(app.stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("entry", cfg.Build.Entry),
		slog.String("output", cfg.Build.Output),
		slog.Bool("watch", cfg.Build.Watch),
		slog.String("interpreter", cfg.Interpreter.Command),
		slog.Bool("history", cfg.History.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	matcher, err := storage.NewMatcher(cfg.Build.Extension, cfg.Build.Ignore, cfg.Build.Output)
	if err != nil {
		return nil, fmt.Errorf("init matcher: %w", err)
	}
	store, err := storage.NewFS(cfg.Build.Entry, matcher)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	runner := app.runner
	if runner == nil {
		runner = validator.NewExecRunner(cfg.Interpreter.Command, cfg.Interpreter.Args...)
	}
	valid := validator.New(runner,
		validator.WithParser(validator.NewDiagnosticParser(cfg.Build.Extension, cfg.Interpreter.Name)),
		validator.WithLogger(logger))

	c := &components{logger: logger, store: store, valid: valid}
	if cfg.History.Enabled {
		db, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("init history: %w", err)
		}
		c.history = db
	}
	return c, nil
}

func (app *application) pipelineConfig(watch bool) pipeline.Config {
	b := app.config.Build
	return pipeline.Config{
		Watch:       watch,
		Output:      b.Output,
		Extension:   b.Extension,
		Concurrency: b.Concurrency,
		ShowDiff:    b.ShowDiff,
	}
}

func (app *application) pipelineOptions(c *components) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithLister(c.store),
		pipeline.WithBundler(bundler.New(c.store)),
		pipeline.WithReporter(report.New(app.stdout)),
		pipeline.WithLogger(c.logger),
	}
	if c.history != nil {
		opts = append(opts, pipeline.WithObserver(history.NewRecorder(c.history, c.logger)))
	}
	return opts
}

// Run starts the application with the given options: a single build, or
// continuous rebuilding when watch mode is configured.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.setup()
	if err != nil {
		return err
	}
	defer c.close()

	if !app.config.Build.Watch {
		return app.runOnce(ctx, c)
	}
	return app.runWatch(ctx, c)
}

func (app *application) runOnce(ctx context.Context, c *components) error {
	p := pipeline.New(app.pipelineConfig(false), c.valid, app.pipelineOptions(c)...)
	res, err := p.RunOnce(ctx)
	if err != nil {
		c.logger.Error("Build error", slog.String("error", err.Error()))
		return err
	}
	c.logger.Info("Build finished",
		slog.Int("units", res.Units),
		slog.Int("failures", res.Failures),
		slog.Bool("bundled", res.Bundled))
	return nil
}

func (app *application) runWatch(ctx context.Context, c *components) error {
	cfg := app.config
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	agg, err := watcher.New(watcher.Config{
		Root:      cfg.Build.Entry,
		Extension: cfg.Build.Extension,
		Matcher:   c.store.Matcher(),
		Debounce:  cfg.Build.Debounce,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}

	opts := app.pipelineOptions(c)
	var broker *sse.Broker
	if cfg.Status.Enabled {
		broker = sse.NewBroker(2 * time.Second)
		defer broker.Close()
		opts = append(opts, pipeline.WithObserver(broker))
	}
	p := pipeline.New(app.pipelineConfig(true), c.valid, opts...)

	var httpServer *http.Server
	if broker != nil {
		httpServer = app.newHTTPServer(p, c, broker)
	}
	return app.serveWatch(ctx, cancel, c, agg, p, httpServer)
}

func (app *application) newHTTPServer(p *pipeline.Pipeline, c *components, broker *sse.Broker) *http.Server {
	cfg := app.config

	var store history.Store
	if c.history != nil {
		store = c.history
	}
	svc := api.NewService(p, store)
	apiRouter := api.NewRouter(svc, cfg.Status.Auth.AuthEnabled(), cfg.Status.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	return &http.Server{
		Addr:              cfg.Status.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (app *application) serveWatch(ctx context.Context, cancel context.CancelFunc, c *components,
	agg *watcher.Aggregator, p *pipeline.Pipeline, httpServer *http.Server) error {
	logger := c.logger
	g, gCtx := errgroup.WithContext(ctx)

	// File watcher: stops, and closes its batch channel, when gCtx ends.
	g.Go(func() error {
		return agg.Run(gCtx)
	})

	// Build loop: a returned error cancels gCtx and so stops the watcher.
	g.Go(func() error {
		return p.Watch(gCtx, agg.Batches())
	})

	if httpServer != nil {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		if httpServer != nil {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	logger.Info("Watching for changes", slog.String("entry", app.config.Build.Entry))

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Watch stopped successfully")
	return nil
}

// RunMCP serves the build tools over MCP stdio. Build reports go to stderr
// since stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	app.stdout = app.stderr
	c, err := app.setup()
	if err != nil {
		return err
	}
	defer c.close()

	p := pipeline.New(app.pipelineConfig(false), c.valid, app.pipelineOptions(c)...)

	var store history.Store
	if c.history != nil {
		store = c.history
	}
	srv := mcpserver.New(p, c.store, store)
	c.logger.Info("MCP server starting on stdio")
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp: serve: %w", err)
	}
	return nil
}
