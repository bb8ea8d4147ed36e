// Package store provides an in-memory generic.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	balances    map[generic.BalanceKey]generic.Balance
	adjustments []generic.Adjustment
	markers     map[string]generic.Marker
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[generic.BalanceKey]generic.Balance),
		markers:  make(map[string]generic.Marker),
	}
}

func (m *Memory) GetBalance(_ context.Context, key generic.BalanceKey) (generic.Amount, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[key]
	return b.Amount, ok, nil
}

func (m *Memory) ListBalances(_ context.Context, entityID generic.EntityID) ([]generic.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Balance
	for k, b := range m.balances {
		if k.EntityID == entityID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ResourceID < result[j].ResourceID })
	return result, nil
}

func (m *Memory) ListAdjustments(_ context.Context, filter generic.AdjustmentFilter) ([]generic.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Adjustment
	for _, adj := range m.adjustments {
		if filter.Matches(adj) {
			result = append(result, adj)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].EffectiveAt.Equal(result[j].EffectiveAt) {
			return result[i].EffectiveAt.Before(result[j].EffectiveAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *Memory) HasMarker(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.markers[key]
	return ok, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	balances    map[generic.BalanceKey]generic.Balance
	adjustments int
	markers     map[string]generic.Marker
}

func (m *Memory) snapshot() memorySnapshot {
	balances := make(map[generic.BalanceKey]generic.Balance, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	markers := make(map[string]generic.Marker, len(m.markers))
	for k, v := range m.markers {
		markers[k] = v
	}
	return memorySnapshot{balances: balances, adjustments: len(m.adjustments), markers: markers}
}

func (m *Memory) restore(s memorySnapshot) {
	m.balances = s.balances
	m.adjustments = m.adjustments[:s.adjustments]
	m.markers = s.markers
}

// txView accesses the parent's maps directly; the parent's write lock is
// held for the whole callback.
type txView struct {
	parent *Memory
}

func (tv *txView) GetBalance(_ context.Context, key generic.BalanceKey) (generic.Amount, bool, error) {
	b, ok := tv.parent.balances[key]
	return b.Amount, ok, nil
}

func (tv *txView) PutBalance(_ context.Context, key generic.BalanceKey, amount generic.Amount, at time.Time) error {
	tv.parent.balances[key] = generic.Balance{
		EntityID:   key.EntityID,
		ResourceID: key.ResourceID,
		Amount:     amount,
		UpdatedAt:  at,
	}
	return nil
}

func (tv *txView) AppendAdjustment(_ context.Context, adj generic.Adjustment) error {
	tv.parent.adjustments = append(tv.parent.adjustments, adj)
	return nil
}

func (tv *txView) HasMarker(_ context.Context, key string) (bool, error) {
	_, ok := tv.parent.markers[key]
	return ok, nil
}

func (tv *txView) PutMarker(_ context.Context, marker generic.Marker) error {
	if _, ok := tv.parent.markers[marker.Key]; ok {
		return generic.ErrAlreadyProcessed
	}
	tv.parent.markers[marker.Key] = marker
	return nil
}

var _ generic.TxStore = (*Memory)(nil)
