/*
app.go - Dependency wiring shared by the server and the CLI

PURPOSE:
  Builds the object graph from a loaded Config: store, ledger, engine,
  run recorder, request workflow, notifier and holiday importer. Both
  cmd/server and cmd/leavectl start from here so they see the same data
  with the same settings.

STORE SELECTION:
  DB_DRIVER=sqlite    store/sqlite, migrations applied on open
  DB_DRIVER=postgres  store/postgres, migrations applied before the pool
                      is created

NOTIFIER SELECTION:
  NOTIFIER=log        decisions are logged
  NOTIFIER=ses        decisions are e-mailed through Amazon SES

SEE ALSO:
  - config/config.go: Settings
  - cmd/server/main.go: HTTP server
  - cli/root.go: Command line
*/
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/holidays"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/postgres"
	"github.com/warp/leave-engine/store/sqlite"
)

// Store is everything the application needs from persistence. Both
// store/sqlite and store/postgres satisfy it.
type Store interface {
	leave.Repository
	generic.TxStore
	engine.RunStore
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// App is the wired application.
type App struct {
	Config   *config.Config
	Store    Store
	Ledger   *generic.DefaultLedger
	Engine   *engine.Engine
	Jobs     *engine.Jobs
	Requests *engine.Requests
	Importer *holidays.Importer
	Log      zerolog.Logger
}

// Open connects to the configured store and wires the rest on top of it.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := newNotifier(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return Wire(cfg, store, notifier, holidays.NewClient(cfg.HolidayFeedURL), log), nil
}

// Wire builds the application over an already opened store. A nil notifier
// disables decision notifications.
func Wire(cfg *config.Config, store Store, notifier engine.Notifier, feed holidays.Feed, log zerolog.Logger) *App {
	ledger := generic.NewLedger(store)
	eng := engine.New(store, ledger, cfg.Engine(), engine.WithLogger(log))
	return &App{
		Config:   cfg,
		Store:    store,
		Ledger:   ledger,
		Engine:   eng,
		Jobs:     engine.NewJobs(eng, store, log),
		Requests: engine.NewRequests(store, ledger, notifier),
		Importer: holidays.NewImporter(feed, store, log),
		Log:      log,
	}
}

// OpenStore opens the configured database and brings its schema up to date.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite", "":
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

func newNotifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (engine.Notifier, error) {
	if cfg.Notifier != "ses" {
		return notify.NewLogNotifier(log), nil
	}
	client, err := notify.NewSESClient(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		return nil, err
	}
	return notify.NewSESNotifier(client, cfg.SESSender), nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
