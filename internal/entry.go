// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mynotes/internal/api"
	"github.com/starford/mynotes/internal/auth"
	"github.com/starford/mynotes/internal/mcpserver"
	"github.com/starford/mynotes/internal/notes"
	"github.com/starford/mynotes/internal/vault"
)

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger initializes the structured JSON logger and installs it as default.
func (a *application) logger(fallback io.Writer) *slog.Logger {
	out := a.logOutput
	if out == nil {
		out = fallback
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openNotes builds the notes service and opens its database.
func (a *application) openNotes(ctx context.Context, logger *slog.Logger) (*notes.Service, error) {
	svc := notes.NewService(a.config.Storage.ServiceOptions(logger)...)
	if err := svc.Open(ctx); err != nil {
		svc.Shutdown()
		return nil, fmt.Errorf("open notes database: %w", err)
	}
	return svc, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger(os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_dir", cfg.Storage.Dir),
		slog.String("storage_driver", string(cfg.Storage.Driver)),
		slog.String("identity_endpoint", cfg.Identity.Endpoint),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, err := app.openNotes(ctx, logger)
	if err != nil {
		return err
	}
	defer svc.Shutdown()
	logger.Info("Notes database opened", slog.String("path", svc.Path()))

	provider := auth.NewIdentityProvider(cfg.Identity.ClientConfig(), logger)
	machine := auth.NewMachine(provider, auth.WithMachineLogger(logger))
	defer machine.Close()
	if err := machine.Dispatch(ctx, auth.Initialize{}); err != nil {
		return fmt.Errorf("initialize auth: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newRouter(cfg, svc, machine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// SSE handlers return once their hub closes; Shutdown waits for them.
	httpServer.RegisterOnShutdown(func() {
		machine.Close()
		svc.CloseStreams()
	})

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Reload the cache when another process writes the database.
	if cfg.Storage.WatchExternal {
		g.Go(func() error {
			if err := notes.Watch(gCtx, svc, logger); err != nil {
				logger.Warn("watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// newRouter mounts health checks and the API.
func newRouter(cfg *Config, svc *notes.Service, machine *auth.Machine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Open(r.Context()); err != nil && !errors.Is(err, notes.ErrDatabaseAlreadyOpen) {
			writeHealth(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeHealth(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api.
	r.Mount("/api", api.NewRouter(machine, svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token))
	return r
}

func writeHealth(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, text)
}

// RunMCP serves the MCP tools on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger(os.Stderr)

	svc, err := app.openNotes(ctx, logger)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	logger.Info("MCP server starting", slog.String("path", svc.Path()))
	if err := mcpserver.New(svc, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// RunExport writes every note as Markdown into dir.
func RunExport(ctx context.Context, dir string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger(os.Stdout)

	svc, err := app.openNotes(ctx, logger)
	if err != nil {
		return err
	}
	defer svc.Shutdown()

	all, err := svc.GetAllNotes(ctx)
	if err != nil {
		return fmt.Errorf("read notes: %w", err)
	}
	written, err := vault.Export(ctx, dir, all)
	if err != nil {
		return fmt.Errorf("export notes: %w", err)
	}
	logger.Info("Export finished",
		slog.String("dir", dir),
		slog.Int("notes", len(all)),
		slog.Int("written", written))
	return nil
}
