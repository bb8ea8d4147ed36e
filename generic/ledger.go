/*
ledger.go - Balance mutations paired with their audit records

PURPOSE:
  The Ledger is the only way balances change. Each Apply call is one atomic
  unit for one employee: read balance, compute the new value, write balance,
  append one adjustment, record the marker. Either all of it lands or none.

CRITICAL INVARIANTS:
  1. PAIRED: Every balance write has exactly one adjustment describing it
  2. APPEND-ONLY: Adjustments are never edited or deleted
  3. IDEMPOTENT: A mutation whose marker exists is rejected with
     ErrAlreadyProcessed and changes nothing

BALANCE RULES:
  A mutation does not carry a delta directly. It carries a BalanceRule that
  maps the current balance to the new one, evaluated inside the transaction:

    Increment(+8h)   accrual, compensation, consumption (negative)
    SetTo(160h)      tenure rule replacing the total entitlement
    CapAt(40h)       year-end carry-over: keep at most 40h

  The recorded delta is always new - current.

CORRECTIONS:
  Mistakes are corrected with a manual adjustment in the opposite
  direction. Both remain in the trail.

SEE ALSO:
  - store.go: Low-level persistence interface
  - engine/: Batch processes built on Apply
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// BALANCE RULES
// =============================================================================

// BalanceRule maps the current balance to the new balance.
type BalanceRule func(current Amount) Amount

// Increment adds delta (which may be negative).
func Increment(delta Amount) BalanceRule {
	return func(current Amount) Amount { return current.Add(delta) }
}

// SetTo replaces the balance with target.
func SetTo(target Amount) BalanceRule {
	return func(Amount) Amount { return target }
}

// CapAt keeps at most limit. Balances already below the limit are unchanged.
func CapAt(limit Amount) BalanceRule {
	return func(current Amount) Amount { return current.Min(limit) }
}

// =============================================================================
// MUTATION
// =============================================================================

type Mutation struct {
	EntityID    EntityID
	ResourceID  ResourceID
	PolicyID    PolicyID
	Kind        AdjustmentKind
	Reason      string
	ReferenceID string
	EffectiveAt TimePoint
	CreatedBy   string
	Rule        BalanceRule

	// Describe, when set, builds the reason from the balance before and
	// after the rule. It overrides Reason.
	Describe func(before, after Amount) string

	// Marker makes the mutation idempotent. Nil for manual adjustments.
	Marker *Marker
}

func (m Mutation) validate() error {
	if m.EntityID == "" || m.ResourceID == "" {
		return fmt.Errorf("%w: entity and leave type are required", ErrInvalidMutation)
	}
	if m.Rule == nil {
		return fmt.Errorf("%w: balance rule is required", ErrInvalidMutation)
	}
	if m.Marker != nil && m.Marker.Key == "" {
		return fmt.Errorf("%w: marker key is empty", ErrInvalidMutation)
	}
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger interface {
	// Apply performs one mutation atomically and returns its adjustment.
	Apply(ctx context.Context, m Mutation) (Adjustment, error)

	// Balance returns the current balance in hours (zero if never touched).
	Balance(ctx context.Context, entityID EntityID, resourceID ResourceID) (Amount, error)

	// Balances returns every balance held by an entity.
	Balances(ctx context.Context, entityID EntityID) ([]Balance, error)

	// Adjustments returns the audit trail. Read-only.
	Adjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error)

	// Processed checks a marker without taking a write transaction.
	Processed(ctx context.Context, markerKey string) (bool, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using TxStore
// =============================================================================

type DefaultLedger struct {
	Store TxStore
	Now   func() time.Time
	NewID func() string
}

func NewLedger(store TxStore) *DefaultLedger {
	return &DefaultLedger{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

func (l *DefaultLedger) Apply(ctx context.Context, m Mutation) (Adjustment, error) {
	if err := m.validate(); err != nil {
		return Adjustment{}, err
	}

	now := l.Now()
	effective := m.EffectiveAt
	if effective.IsZero() {
		effective = DateOf(now)
	}
	createdBy := m.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	key := BalanceKey{EntityID: m.EntityID, ResourceID: m.ResourceID}

	var adj Adjustment
	err := l.Store.WithTx(ctx, func(tx LedgerTx) error {
		if m.Marker != nil {
			done, err := tx.HasMarker(ctx, m.Marker.Key)
			if err != nil {
				return err
			}
			if done {
				return ErrAlreadyProcessed
			}
		}

		current, _, err := tx.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		if current.Unit == "" {
			current = ZeroHours()
		}

		next := m.Rule(current)
		next.Unit = UnitHours
		reason := m.Reason
		if m.Describe != nil {
			reason = m.Describe(current, next)
		}

		adj = Adjustment{
			ID:           AdjustmentID(l.NewID()),
			EntityID:     m.EntityID,
			ResourceID:   m.ResourceID,
			PolicyID:     m.PolicyID,
			Kind:         m.Kind,
			Delta:        next.Sub(current),
			BalanceAfter: next,
			Reason:       reason,
			ReferenceID:  m.ReferenceID,
			EffectiveAt:  effective,
			CreatedBy:    createdBy,
			CreatedAt:    now,
		}

		if err := tx.PutBalance(ctx, key, next, now); err != nil {
			return err
		}
		if m.Marker != nil {
			marker := *m.Marker
			marker.CreatedAt = now
			if marker.EntityID == "" {
				marker.EntityID = m.EntityID
			}
			adj.MarkerKey = marker.Key
			if err := tx.PutMarker(ctx, marker); err != nil {
				return err
			}
		}
		return tx.AppendAdjustment(ctx, adj)
	})
	if err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}

func (l *DefaultLedger) Balance(ctx context.Context, entityID EntityID, resourceID ResourceID) (Amount, error) {
	amount, found, err := l.Store.GetBalance(ctx, BalanceKey{EntityID: entityID, ResourceID: resourceID})
	if err != nil {
		return Amount{}, err
	}
	if !found {
		return ZeroHours(), nil
	}
	return amount, nil
}

func (l *DefaultLedger) Balances(ctx context.Context, entityID EntityID) ([]Balance, error) {
	return l.Store.ListBalances(ctx, entityID)
}

func (l *DefaultLedger) Adjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error) {
	return l.Store.ListAdjustments(ctx, filter)
}

func (l *DefaultLedger) Processed(ctx context.Context, markerKey string) (bool, error) {
	return l.Store.HasMarker(ctx, markerKey)
}
