package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resumade/resumade/internal/client/broadcast"
	"github.com/resumade/resumade/internal/client/session"
	"github.com/resumade/resumade/internal/client/tokenstore/drivers/sqlite"
	"github.com/resumade/resumade/internal/client/ui"
	"github.com/resumade/resumade/pkg/authapi"
	"github.com/resumade/resumade/pkg/cryptox"
	"github.com/resumade/resumade/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags
	BuildVersion = "v0.1.0"
)

// Application encapsulates the client with all its dependencies wired:
// token store -> gateway -> session engine -> broadcast hub -> UI server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store    *sqlite.Store
	gateway  *authapi.Client
	hub      *broadcast.Hub
	sessions *session.Manager

	server *http.Server
	router *ui.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "resumade-client",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set the machine key used to seal the refresh token at rest
	if cfg.MachineKeyFile != "" {
		cryptox.SetMachineKeyPath(cfg.MachineKeyFile)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initSession()
	app.initHTTP()

	return app, nil
}

// Run resumes the persisted session, starts the refresh timer and the UI
// server, and blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx := context.Background()
	if err := app.sessions.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume session: %w", err)
	}
	app.sessions.Start()

	app.logger.Info("resumade client starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down resumade client...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the refresh timer and wait for background session work
	app.sessions.Close()

	// Close the session store
	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}

	app.logger.Info("resumade client stopped")
	return nil
}

// initDatabase initializes the session store and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	app.store = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSession wires the gateway, hub and policy engine
func (app *Application) initSession() {
	app.gateway = authapi.NewClient(app.cfg.APIBaseURL, app.cfg.APIVersion, app.store)
	app.hub = broadcast.NewHub()
	app.sessions = session.NewManager(app.gateway, app.store, app.hub, app.logger, session.Config{
		SkewMargin:           app.cfg.SkewMargin,
		RefreshCheckInterval: app.cfg.RefreshCheckInterval,
	})
}

// initHTTP initializes the UI router and server
func (app *Application) initHTTP() {
	router := ui.NewRouter(app.sessions, BuildVersion, app.logger)
	router.ApplyRoutes()
	app.router = router

	// Loopback only: the UI server stands in for the browser tree and
	// must not be reachable from the network
	app.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
