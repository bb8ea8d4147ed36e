/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One Store serves the ledger (balances, adjustments, markers), the HR
  repository (leave types, policies, schedules, employees, holidays,
  requests) and the job run history. The PostgreSQL store in store/postgres
  implements the same interfaces with the same schema.

INTERFACES IMPLEMENTED:
  generic.TxStore:  Balances, adjustments and processed-period markers
  leave.Repository: Catalog, roster, holidays and requests
  engine.RunStore:  Batch run history

APPEND-ONLY ENFORCEMENT:
  - balance_adjustments and processed_markers are only ever inserted
  - leave_balances is updated only inside WithTx, next to the adjustment
    that explains the update
  - processed_markers.marker_key is the primary key: a second insert fails
    and surfaces as generic.ErrAlreadyProcessed

KEY TABLES:
  leave_balances:      Running total per (employee, leave type), in hours
  balance_adjustments: Immutable audit trail
  processed_markers:   accrual:/holiday:/settlement:/request: keys
  policies, policy_rules, work_schedules, schedule_rules, employees
  public_holidays:     Unique by date
  job_runs:            One row per batch run

CONCURRENCY:
  Uses sync.RWMutex and a single connection. SQLite has one writer at a
  time anyway; with PostgreSQL, row locks handle this instead.

MIGRATION:
  Versioned migrations are embedded and applied with golang-migrate on New().

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Ledger interfaces
  - leave/repository.go: HR interfaces
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would be a different database.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	defer src.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	// m.Close would close db as well; the source is closed above.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatDate(tp generic.TimePoint) sql.NullString {
	return nullString(tp.String())
}

func parseDate(ns sql.NullString) generic.TimePoint {
	if !ns.Valid || ns.String == "" {
		return generic.TimePoint{}
	}
	tp, _ := generic.ParseDate(ns.String)
	return tp
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
