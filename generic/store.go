/*
store.go - Persistence interface for balances, adjustments and markers

PURPOSE:
  Defines the interface between the ledger and the database. Balances are
  running totals; adjustments are the append-only audit trail explaining
  each change; markers record which batch periods were already processed.

KEY INTERFACES:
  Store:    Read side (balances, adjustments, markers)
  LedgerTx: Writes scoped to one database transaction
  TxStore:  Store + WithTx, the unit of atomicity for one employee

APPEND-ONLY CONTRACT:
  Adjustments and markers are only ever inserted. Balances are the single
  updatable row, and only inside a transaction that also appends the
  adjustment describing the update.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level Apply using TxStore
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Read side
// =============================================================================

type Store interface {
	// GetBalance returns the balance and whether a row exists.
	GetBalance(ctx context.Context, key BalanceKey) (Amount, bool, error)

	// ListBalances returns every balance for an entity, ordered by resource.
	ListBalances(ctx context.Context, entityID EntityID) ([]Balance, error)

	// ListAdjustments returns adjustments ordered by EffectiveAt then CreatedAt.
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error)

	// HasMarker checks whether a processed-period marker exists.
	HasMarker(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - One employee, one atomic unit
// =============================================================================

// LedgerTx is the write view handed to WithTx callbacks. Every read inside
// the callback must go through it so it sees the transaction's own writes.
type LedgerTx interface {
	GetBalance(ctx context.Context, key BalanceKey) (Amount, bool, error)
	PutBalance(ctx context.Context, key BalanceKey, amount Amount, at time.Time) error
	AppendAdjustment(ctx context.Context, adj Adjustment) error
	HasMarker(ctx context.Context, key string) (bool, error)
	PutMarker(ctx context.Context, m Marker) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error
}
