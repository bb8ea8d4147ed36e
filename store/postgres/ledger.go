package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEDGER STORE (generic.Store interface)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key generic.BalanceKey) (generic.Amount, bool, error) {
	return getBalance(ctx, s.pool, key)
}

func getBalance(ctx context.Context, q querier, key generic.BalanceKey) (generic.Amount, bool, error) {
	var amount string
	err := q.QueryRow(ctx,
		"SELECT amount::text FROM leave_balances WHERE entity_id = $1 AND resource_id = $2",
		string(key.EntityID), string(key.ResourceID),
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := s.pool.Query(ctx, `
		SELECT resource_id, amount::text, updated_at
		FROM leave_balances WHERE entity_id = $1 ORDER BY resource_id`,
		string(entityID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var result []generic.Balance
	for rows.Next() {
		var resource, amount string
		var updatedAt time.Time
		if err := rows.Scan(&resource, &amount, &updatedAt); err != nil {
			return nil, err
		}
		value, err := parseDecimal(amount)
		if err != nil {
			return nil, err
		}
		result = append(result, generic.Balance{
			EntityID:   entityID,
			ResourceID: generic.ResourceID(resource),
			Amount:     generic.Hours(value),
			UpdatedAt:  updatedAt.UTC(),
		})
	}
	return result, rows.Err()
}

func (s *Store) ListAdjustments(ctx context.Context, filter generic.AdjustmentFilter) ([]generic.Adjustment, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.EntityID != "" {
		where = append(where, "entity_id = "+arg(string(filter.EntityID)))
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = "+arg(string(filter.ResourceID)))
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		where = append(where, "kind = ANY("+arg(kinds)+")")
	}
	if filter.From != nil {
		where = append(where, "effective_at >= "+arg(filter.From.Time))
	}
	if filter.To != nil {
		where = append(where, "effective_at <= "+arg(filter.To.Time))
	}

	query := `
		SELECT id, entity_id, resource_id, policy_id, kind, delta::text, balance_after::text,
		       reason, marker_key, reference_id, effective_at, created_by, created_at
		FROM balance_adjustments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY effective_at, created_at, seq"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var result []generic.Adjustment
	for rows.Next() {
		var adj generic.Adjustment
		var id, entity, resource, policy, kind, delta, after string
		var marker, reference *string
		var effective, createdAt time.Time
		if err := rows.Scan(&id, &entity, &resource, &policy, &kind, &delta, &after,
			&adj.Reason, &marker, &reference, &effective, &adj.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		d, err := parseDecimal(delta)
		if err != nil {
			return nil, err
		}
		a, err := parseDecimal(after)
		if err != nil {
			return nil, err
		}
		adj.ID = generic.AdjustmentID(id)
		adj.EntityID = generic.EntityID(entity)
		adj.ResourceID = generic.ResourceID(resource)
		adj.PolicyID = generic.PolicyID(policy)
		adj.Kind = generic.AdjustmentKind(kind)
		adj.Delta = generic.Hours(d)
		adj.BalanceAfter = generic.Hours(a)
		adj.MarkerKey = deref(marker)
		adj.ReferenceID = deref(reference)
		adj.EffectiveAt = dateOf(&effective)
		adj.CreatedAt = createdAt.UTC()
		result = append(result, adj)
	}
	return result, rows.Err()
}

func (s *Store) HasMarker(ctx context.Context, key string) (bool, error) {
	return hasMarker(ctx, s.pool, key)
}

func hasMarker(ctx context.Context, q querier, key string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM processed_markers WHERE marker_key = $1)", key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check marker: %w", err)
	}
	return exists, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx generic.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

// GetBalance locks the (employee, leave type) pair until the transaction
// ends, whether or not its row exists yet.
func (ts *txStore) GetBalance(ctx context.Context, key generic.BalanceKey) (generic.Amount, bool, error) {
	lockKey := string(key.EntityID) + "/" + string(key.ResourceID)
	if _, err := ts.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockKey); err != nil {
		return generic.Amount{}, false, fmt.Errorf("failed to lock balance: %w", err)
	}
	return getBalance(ctx, ts.tx, key)
}

func (ts *txStore) PutBalance(ctx context.Context, key generic.BalanceKey, amount generic.Amount, at time.Time) error {
	_, err := ts.tx.Exec(ctx, `
		INSERT INTO leave_balances (entity_id, resource_id, amount, updated_at)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (entity_id, resource_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`,
		string(key.EntityID), string(key.ResourceID), amount.Value.String(), at,
	)
	if err != nil {
		return fmt.Errorf("failed to store balance: %w", err)
	}
	return nil
}

func (ts *txStore) AppendAdjustment(ctx context.Context, adj generic.Adjustment) error {
	_, err := ts.tx.Exec(ctx, `
		INSERT INTO balance_adjustments (
			id, entity_id, resource_id, policy_id, kind, delta, balance_after,
			reason, marker_key, reference_id, effective_at, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13)`,
		string(adj.ID), string(adj.EntityID), string(adj.ResourceID), string(adj.PolicyID),
		string(adj.Kind), adj.Delta.Value.String(), adj.BalanceAfter.Value.String(),
		adj.Reason, nullString(adj.MarkerKey), nullString(adj.ReferenceID),
		adj.EffectiveAt.Time, adj.CreatedBy, adj.CreatedAt,
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
	_, err := ts.tx.Exec(ctx, `
		INSERT INTO processed_markers (marker_key, entity_id, policy_id, process, period, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.Key, string(m.EntityID), string(m.PolicyID), m.Process, m.Period, m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return generic.ErrAlreadyProcessed
	}
	if err != nil {
		return fmt.Errorf("failed to store marker: %w", err)
	}
	return nil
}

var _ generic.TxStore = (*Store)(nil)
