/*
Package generic provides the core balance ledger used by the leave engine.

PURPOSE:
  This package contains the domain-agnostic types and algorithms for keeping
  per-employee running balances with a full audit trail. Annual leave,
  compensatory leave and any other leave type share the same ledger: a balance
  row per (entity, resource) and an append-only list of adjustments that
  explain every change to it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 12 days, 96 hours)
  - Adjustment: An immutable ledger entry recording one balance change
  - Balance: The current running total for an (entity, resource) pair
  - Marker: A processed-period record that makes batch processes idempotent
  - Entity/Resource/Policy IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Adjustments are never modified or deleted
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing employee/leave-type IDs
  4. Auditability: Every balance mutation is paired with exactly one adjustment

USAGE:
  hours := generic.NewAmount(96, generic.UnitHours)
  adj, err := ledger.Apply(ctx, generic.Mutation{
      EntityID:   "emp-123",
      ResourceID: "annual",
      Kind:       generic.KindAccrual,
      Rule:       generic.Increment(hours),
  })

SEE ALSO:
  - ledger.go: Mutation and the atomic Apply unit
  - store.go: Persistence interfaces
  - accrual.go: Accrual frequencies and period keys
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool { return u == UnitDays || u == UnitHours }

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

// Hours is shorthand for an amount in hours, the unit every balance is kept in.
func Hours(value decimal.Decimal) Amount { return Amount{Value: value, Unit: UnitHours} }

func ZeroHours() Amount { return Amount{Value: decimal.Zero, Unit: UnitHours} }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) && a.Unit == b.Unit }
func (a Amount) String() string               { return a.Value.String() + " " + string(a.Unit) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type ResourceID string
type PolicyID string
type AdjustmentID string

// BalanceKey identifies one running balance.
type BalanceKey struct {
	EntityID   EntityID
	ResourceID ResourceID
}

// =============================================================================
// ADJUSTMENT - Immutable record of one balance change
// =============================================================================

type AdjustmentKind string

const (
	KindAccrual             AdjustmentKind = "accrual"              // Periodic accrual increment
	KindEntitlementReset    AdjustmentKind = "entitlement_reset"    // Tenure rule replaced the total entitlement
	KindHolidayCompensation AdjustmentKind = "holiday_compensation" // Holiday fell on a rest day
	KindSettlement          AdjustmentKind = "settlement"           // Year-end carry-over / forfeiture
	KindManual              AdjustmentKind = "manual"               // HR correction
	KindConsumption         AdjustmentKind = "consumption"          // Approved leave request
)

type Adjustment struct {
	ID           AdjustmentID
	EntityID     EntityID
	ResourceID   ResourceID
	PolicyID     PolicyID
	Kind         AdjustmentKind
	Delta        Amount
	BalanceAfter Amount
	Reason       string
	MarkerKey    string
	ReferenceID  string
	EffectiveAt  TimePoint

	// Audit fields
	CreatedBy string // "system" for batch processes, otherwise the actor
	CreatedAt time.Time
}

// AdjustmentFilter narrows ListAdjustments. Zero values match everything.
type AdjustmentFilter struct {
	EntityID   EntityID
	ResourceID ResourceID
	Kinds      []AdjustmentKind
	From       *TimePoint
	To         *TimePoint
	Limit      int
}

// Matches reports whether adj passes the filter.
func (f AdjustmentFilter) Matches(adj Adjustment) bool {
	if f.EntityID != "" && adj.EntityID != f.EntityID {
		return false
	}
	if f.ResourceID != "" && adj.ResourceID != f.ResourceID {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if adj.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && adj.EffectiveAt.Before(*f.From) {
		return false
	}
	if f.To != nil && adj.EffectiveAt.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// BALANCE - Running total per (entity, resource)
// =============================================================================

type Balance struct {
	EntityID   EntityID
	ResourceID ResourceID
	Amount     Amount
	UpdatedAt  time.Time
}

// =============================================================================
// MARKER - Processed-period record
// =============================================================================

// Marker records that a batch process already handled one employee for one
// period. Its Key is unique across the store.
type Marker struct {
	Key       string
	EntityID  EntityID
	PolicyID  PolicyID
	Process   string
	Period    string
	CreatedAt time.Time
}
