package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"go.databridge.dev/internal/common/metrics"
	"go.databridge.dev/internal/config"
	"go.databridge.dev/internal/store"
)

// App holds initialized infrastructure that is guaranteed to be connected.
// If you have an *App, you know the store is open and ready.
//
// This is NOT a god object - it just holds the "dangerous" infrastructure
// that requires connection/retry logic. Application logic should NOT go here.
type App struct {
	Config *config.Config
	Store  store.Store

	// Internal cleanup - call AddCleanup to register cleanup functions
	cleanupFuncs []func() error
}

// AppOptions configures which infrastructure to initialize.
type AppOptions struct {
	// NeedsStore indicates the durable Inbox/Outbox store must be opened.
	NeedsStore bool
}

// Initialize creates an App with connected infrastructure.
// Returns an error if any required connection fails.
//
// Usage:
//
//	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{
//	    NeedsStore: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func Initialize(ctx context.Context, opts AppOptions) (*App, func(), error) {
	app := &App{}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	if opts.NeedsStore {
		if err := app.initStore(ctx); err != nil {
			app.Cleanup()
			return nil, nil, err
		}
	}

	cleanup := func() {
		app.Cleanup()
	}

	return app, cleanup, nil
}

// AddCleanup registers a cleanup function to be called on shutdown.
// Functions are called in reverse order of registration.
func (app *App) AddCleanup(fn func() error) {
	app.cleanupFuncs = append(app.cleanupFuncs, fn)
}

// initStore opens the durable Inbox/Outbox store, creates its schema if
// needed, and recovers any rows left in-flight by a crashed prior process.
func (app *App) initStore(ctx context.Context) error {
	cfg := app.Config

	slog.Info("Opening store", "path", cfg.Store.Path)

	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if err := s.CreateSchema(ctx); err != nil {
		s.Close()
		return fmt.Errorf("failed to create store schema: %w", err)
	}

	resetInbox, err := s.InboxResetStuck(ctx)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to recover stuck inbox rows: %w", err)
	}
	resetOutbox, err := s.OutboxResetStuck(ctx)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to recover stuck outbox rows: %w", err)
	}
	if resetInbox > 0 {
		metrics.StoreResetStuckRows.WithLabelValues("inbox").Add(float64(resetInbox))
	}
	if resetOutbox > 0 {
		metrics.StoreResetStuckRows.WithLabelValues("outbox").Add(float64(resetOutbox))
	}
	if resetInbox > 0 || resetOutbox > 0 {
		slog.Warn("recovered rows left in-flight by a prior process",
			"inbox_rows", resetInbox, "outbox_rows", resetOutbox)
	}

	app.Store = s

	app.AddCleanup(func() error {
		slog.Info("Closing store")
		return s.Close()
	})

	slog.Info("Store ready", "path", cfg.Store.Path)
	return nil
}

// Cleanup runs all cleanup functions in reverse order.
func (app *App) Cleanup() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		if err := app.cleanupFuncs[i](); err != nil {
			slog.Error("Cleanup error", "error", err)
		}
	}
}
