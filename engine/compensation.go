package engine

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HOLIDAY COMPENSATION
// =============================================================================

// CompensateHolidays grants compensatory hours for every public holiday in
// [from, to] that falls on an employee's rest day.
//
// An employee is considered when they have a work schedule, their policy (if
// any) enables holiday compensation, and they completed their eligibility
// months by the holiday date. The grant is the first shift's length. Each
// grant is marked with holiday:<employee>:<leave type>:<date>, so re-running
// any window that covers the holiday grants nothing new.
func (e *Engine) CompensateHolidays(ctx context.Context, from, to generic.TimePoint) (*Report, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s..%s", generic.ErrInvalidPeriod, from, to)
	}
	target, err := e.leaveType(ctx, e.cfg.compensationLeaveType())
	if err != nil {
		return nil, err
	}
	holidays, err := e.roster.ListHolidays(ctx, from, to)
	if err != nil {
		return nil, err
	}
	employees, err := e.roster.ListActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}
	policies, err := e.resolvePolicies(ctx, employees)
	if err != nil {
		return nil, err
	}

	plan := func(ctx context.Context, emp leave.Employee) ([]generic.Mutation, error) {
		if len(holidays) == 0 || !emp.HasSchedule() {
			return nil, nil
		}
		if emp.HasPolicy() && !policies[emp.PolicyID].HolidayCompensation {
			return nil, nil
		}
		if emp.HireDate.IsZero() {
			return nil, leave.ErrMissingHireDate
		}
		schedule, err := e.schedule(ctx, emp)
		if err != nil {
			return nil, err
		}
		return e.compensationMutations(emp, schedule, target.ID, holidays), nil
	}
	return e.run(ctx, ProcessCompensation, from, to, employees, plan), nil
}

func (e *Engine) compensationMutations(emp leave.Employee, schedule *leave.WorkSchedule, target generic.ResourceID, holidays []generic.Holiday) []generic.Mutation {
	eligibleAfter := emp.EligibleAfterMonths(e.cfg.DefaultEligibleMonths)
	grant := generic.Hours(e.cfg.Hours.ShiftHours(schedule))

	var mutations []generic.Mutation
	for _, h := range holidays {
		if h.Date.Before(emp.HireDate) {
			continue
		}
		if generic.CompletedMonths(emp.HireDate, h.Date) < eligibleAfter {
			continue
		}
		if schedule.WorksOn(h.Date.Weekday()) {
			continue
		}
		mutations = append(mutations, generic.Mutation{
			EntityID:    emp.ID,
			ResourceID:  target,
			PolicyID:    emp.PolicyID,
			Kind:        generic.KindHolidayCompensation,
			Reason:      CompensationReason(h),
			ReferenceID: h.ID,
			EffectiveAt: h.Date,
			Rule:        generic.Increment(grant),
			Marker: &generic.Marker{
				Key:      generic.MarkerKey(markerHoliday, string(emp.ID), string(target), h.Date.String()),
				PolicyID: emp.PolicyID,
				Process:  markerHoliday,
				Period:   h.Date.String(),
			},
		})
	}
	return mutations
}

func CompensationReason(h generic.Holiday) string {
	return fmt.Sprintf("Holiday compensation: %s on %s", h.Name, h.Date)
}
