package engine

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// YEAR-END SETTLEMENT
// =============================================================================

// Settle closes the fiscal year for every employee whose policy's fiscal year
// starts on date. With carry-over the balance is capped at the policy's
// maximum, otherwise it becomes zero. The forfeited hours are recorded as one
// settlement adjustment marked settlement:<employee>:<policy>:<year>, where
// year labels the fiscal year that just ended.
func (e *Engine) Settle(ctx context.Context, date generic.TimePoint) (*Report, error) {
	target, err := e.leaveType(ctx, e.cfg.AnnualLeaveType)
	if err != nil {
		return nil, err
	}
	active, err := e.roster.ListActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}
	withPolicy, policies, err := e.withPolicies(ctx, active)
	if err != nil {
		return nil, err
	}

	var due []leave.Employee
	for _, emp := range withPolicy {
		if policies[emp.PolicyID].IsFiscalBoundary(date) {
			due = append(due, emp)
		}
	}

	plan := func(ctx context.Context, emp leave.Employee) ([]generic.Mutation, error) {
		m, err := e.settlementMutation(ctx, emp, policies[emp.PolicyID], target.ID, date)
		if err != nil {
			return nil, err
		}
		return []generic.Mutation{m}, nil
	}
	return e.run(ctx, ProcessSettlement, date, date, due, plan), nil
}

func (e *Engine) settlementMutation(ctx context.Context, emp leave.Employee, p leave.Policy, target generic.ResourceID, date generic.TimePoint) (generic.Mutation, error) {
	label := p.FiscalPeriods().Label(date.AddDays(-1))

	rule := generic.SetTo(generic.ZeroHours())
	if p.AllowCarryOver {
		daily, err := e.dailyHours(ctx, emp, p)
		if err != nil {
			return generic.Mutation{}, err
		}
		rule = generic.CapAt(generic.Hours(leave.ToHours(p.MaxCarryOver, p.AccrualUnit, daily)))
	}

	return generic.Mutation{
		EntityID:    emp.ID,
		ResourceID:  target,
		PolicyID:    p.ID,
		Kind:        generic.KindSettlement,
		EffectiveAt: date,
		Rule:        rule,
		Describe: func(before, after generic.Amount) string {
			return SettlementReason(label, after, before.Sub(after))
		},
		Marker: &generic.Marker{
			Key:      generic.MarkerKey(markerSettlement, string(emp.ID), string(p.ID), label),
			PolicyID: p.ID,
			Process:  markerSettlement,
			Period:   label,
		},
	}, nil
}

func SettlementReason(label string, carried, forfeited generic.Amount) string {
	return fmt.Sprintf("Year-end settlement for %s: carried over %sh, forfeited %sh",
		label, carried.Value.String(), forfeited.Value.String())
}
