package engine

import (
	"context"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// ACCRUAL
// =============================================================================

// Accrue applies the accrual due on date to every active employee with a
// policy. Employees inside their waiting period, or whose frequency does not
// fire on date, are skipped. Each accrual is marked with
// accrual:<employee>:<policy>:<period key>, so re-running the same date, or
// another date in the same period, is a no-op.
//
// On an employee's fiscal boundary the closing year is settled before the
// accrual lands, unless a settlement run already did it, so the new grant is
// never forfeited by a settlement that runs later.
func (e *Engine) Accrue(ctx context.Context, date generic.TimePoint) (*Report, error) {
	target, err := e.leaveType(ctx, e.cfg.AnnualLeaveType)
	if err != nil {
		return nil, err
	}
	active, err := e.roster.ListActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}
	employees, policies, err := e.withPolicies(ctx, active)
	if err != nil {
		return nil, err
	}

	plan := func(ctx context.Context, emp leave.Employee) ([]generic.Mutation, error) {
		p := policies[emp.PolicyID]
		m, ok, err := e.accrualMutation(ctx, emp, p, target.ID, date)
		if err != nil || !ok {
			return nil, err
		}
		if !p.IsFiscalBoundary(date) {
			return []generic.Mutation{m}, nil
		}
		s, err := e.settlementMutation(ctx, emp, p, target.ID, date)
		if err != nil {
			return nil, err
		}
		return []generic.Mutation{s, m}, nil
	}
	return e.run(ctx, ProcessAccrual, date, date, employees, plan), nil
}

func (e *Engine) accrualMutation(ctx context.Context, emp leave.Employee, p leave.Policy, target generic.ResourceID, date generic.TimePoint) (generic.Mutation, bool, error) {
	if emp.HireDate.IsZero() {
		return generic.Mutation{}, false, leave.ErrMissingHireDate
	}

	var schedule *leave.WorkSchedule
	if p.AccrualUnit == generic.UnitDays {
		s, err := e.schedule(ctx, emp)
		if err != nil {
			return generic.Mutation{}, false, err
		}
		schedule = s
	}

	decision, err := leave.ComputeAccrual(leave.AccrualInput{
		Policy:   p,
		HireDate: emp.HireDate,
		Schedule: schedule,
		Date:     date,
		Hours:    e.cfg.Hours,
	})
	if err != nil {
		return generic.Mutation{}, false, err
	}
	if !decision.Fires {
		return generic.Mutation{}, false, nil
	}

	key := generic.MarkerKey(markerAccrual, string(emp.ID), string(p.ID), decision.PeriodKey)
	return generic.Mutation{
		EntityID:    emp.ID,
		ResourceID:  target,
		PolicyID:    p.ID,
		Kind:        decision.Kind(),
		Reason:      leave.AccrualReason(date, p.Name),
		EffectiveAt: date,
		Rule:        decision.BalanceRule(),
		Marker: &generic.Marker{
			Key:      key,
			PolicyID: p.ID,
			Process:  markerAccrual,
			Period:   decision.PeriodKey,
		},
	}, true, nil
}
