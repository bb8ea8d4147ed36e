package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEDGER STORE (generic.Store interface)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key generic.BalanceKey) (generic.Amount, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalance(ctx, s.db, key)
}

func getBalance(ctx context.Context, q querier, key generic.BalanceKey) (generic.Amount, bool, error) {
	var amount string
	err := q.QueryRowContext(ctx,
		"SELECT amount FROM leave_balances WHERE entity_id = ? AND resource_id = ?",
		string(key.EntityID), string(key.ResourceID),
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.ZeroHours(), false, nil
	}
	if err != nil {
		return generic.Amount{}, false, fmt.Errorf("failed to load balance: %w", err)
	}
	value, err := parseDecimal(amount)
	if err != nil {
		return generic.Amount{}, false, err
	}
	return generic.Hours(value), true, nil
}

func (s *Store) ListBalances(ctx context.Context, entityID generic.EntityID) ([]generic.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, resource_id, amount, updated_at
		FROM leave_balances WHERE entity_id = ? ORDER BY resource_id`,
		string(entityID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var result []generic.Balance
	for rows.Next() {
		var b generic.Balance
		var entity, resource, amount, updatedAt string
		if err := rows.Scan(&entity, &resource, &amount, &updatedAt); err != nil {
			return nil, err
		}
		value, err := parseDecimal(amount)
		if err != nil {
			return nil, err
		}
		b.EntityID = generic.EntityID(entity)
		b.ResourceID = generic.ResourceID(resource)
		b.Amount = generic.Hours(value)
		b.UpdatedAt = parseTime(updatedAt)
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) ListAdjustments(ctx context.Context, filter generic.AdjustmentFilter) ([]generic.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, string(filter.EntityID))
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, string(filter.ResourceID))
	}
	if len(filter.Kinds) > 0 {
		marks := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "effective_at >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		where = append(where, "effective_at <= ?")
		args = append(args, filter.To.String())
	}

	query := `
		SELECT id, entity_id, resource_id, policy_id, kind, delta, balance_after,
		       reason, marker_key, reference_id, effective_at, created_by, created_at
		FROM balance_adjustments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY effective_at, created_at, rowid"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var result []generic.Adjustment
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, adj)
	}
	return result, rows.Err()
}

func scanAdjustment(rows *sql.Rows) (generic.Adjustment, error) {
	var adj generic.Adjustment
	var id, entity, resource, policy, kind, delta, after, effective, createdAt string
	var marker, reference sql.NullString
	if err := rows.Scan(&id, &entity, &resource, &policy, &kind, &delta, &after,
		&adj.Reason, &marker, &reference, &effective, &adj.CreatedBy, &createdAt); err != nil {
		return adj, fmt.Errorf("failed to scan adjustment: %w", err)
	}
	d, err := parseDecimal(delta)
	if err != nil {
		return adj, err
	}
	a, err := parseDecimal(after)
	if err != nil {
		return adj, err
	}
	adj.ID = generic.AdjustmentID(id)
	adj.EntityID = generic.EntityID(entity)
	adj.ResourceID = generic.ResourceID(resource)
	adj.PolicyID = generic.PolicyID(policy)
	adj.Kind = generic.AdjustmentKind(kind)
	adj.Delta = generic.Hours(d)
	adj.BalanceAfter = generic.Hours(a)
	adj.MarkerKey = marker.String
	adj.ReferenceID = reference.String
	adj.EffectiveAt = parseDate(sql.NullString{String: effective, Valid: true})
	adj.CreatedAt = parseTime(createdAt)
	return adj, nil
}

func (s *Store) HasMarker(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasMarker(ctx, s.db, key)
}

func hasMarker(ctx context.Context, q querier, key string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_markers WHERE marker_key = ?", key,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check marker: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx generic.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore reads and writes through the open transaction. The parent's write
// lock is held for the whole callback, so it must not call back into Store.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetBalance(ctx context.Context, key generic.BalanceKey) (generic.Amount, bool, error) {
	return getBalance(ctx, ts.tx, key)
}

func (ts *txStore) PutBalance(ctx context.Context, key generic.BalanceKey, amount generic.Amount, at time.Time) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO leave_balances (entity_id, resource_id, amount, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id, resource_id) DO UPDATE SET
			amount = excluded.amount,
			updated_at = excluded.updated_at`,
		string(key.EntityID), string(key.ResourceID), amount.Value.String(), formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("failed to store balance: %w", err)
	}
	return nil
}

func (ts *txStore) AppendAdjustment(ctx context.Context, adj generic.Adjustment) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO balance_adjustments (
			id, entity_id, resource_id, policy_id, kind, delta, balance_after,
			reason, marker_key, reference_id, effective_at, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(adj.ID), string(adj.EntityID), string(adj.ResourceID), string(adj.PolicyID),
		string(adj.Kind), adj.Delta.Value.String(), adj.BalanceAfter.Value.String(),
		adj.Reason, nullString(adj.MarkerKey), nullString(adj.ReferenceID),
		adj.EffectiveAt.String(), adj.CreatedBy, formatTime(adj.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append adjustment: %w", err)
	}
	return nil
}

func (ts *txStore) HasMarker(ctx context.Context, key string) (bool, error) {
	return hasMarker(ctx, ts.tx, key)
}

func (ts *txStore) PutMarker(ctx context.Context, m generic.Marker) error {
	_, err := ts.tx.ExecContext(ctx, `
		INSERT INTO processed_markers (marker_key, entity_id, policy_id, process, period, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.Key, string(m.EntityID), string(m.PolicyID), m.Process, m.Period, formatTime(m.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return generic.ErrAlreadyProcessed
	}
	if err != nil {
		return fmt.Errorf("failed to store marker: %w", err)
	}
	return nil
}

var _ generic.TxStore = (*Store)(nil)
