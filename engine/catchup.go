package engine

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// CATCH-UP - Replaying missed days
// =============================================================================

// CatchUp replays every day in [from, to] in order: settlement first, so a
// year is closed before the new year's accrual lands, then accrual, then
// compensation for holidays on that day. It returns one report per process
// totalled over the window.
//
// Days already handled are no-ops through their markers, so CatchUp is safe
// over any window, including one that overlaps normal scheduled runs. It
// stops at the first day whose run was cut short by the budget.
func (e *Engine) CatchUp(ctx context.Context, from, to generic.TimePoint) ([]*Report, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s..%s", generic.ErrInvalidPeriod, from, to)
	}

	totals := []*Report{
		{Process: ProcessSettlement, From: from, To: to, StartedAt: e.now()},
		{Process: ProcessAccrual, From: from, To: to, StartedAt: e.now()},
		{Process: ProcessCompensation, From: from, To: to, StartedAt: e.now()},
	}
	steps := []func(context.Context, generic.TimePoint) (*Report, error){
		e.Settle,
		e.Accrue,
		func(ctx context.Context, day generic.TimePoint) (*Report, error) {
			return e.CompensateHolidays(ctx, day, day)
		},
	}
	finish := func() []*Report {
		for _, r := range totals {
			r.FinishedAt = e.now()
			r.sortFailures()
		}
		return totals
	}

	for day := from; !day.After(to); day = day.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}
		incomplete := false
		for i, step := range steps {
			rep, err := step(ctx, day)
			if err != nil {
				return finish(), fmt.Errorf("%s on %s: %w", totals[i].Process, day, err)
			}
			totals[i].merge(rep)
			incomplete = incomplete || rep.Incomplete()
		}
		if incomplete {
			e.log.Warn().Str("day", day.String()).Msg("catch-up stopped by budget")
			break
		}
	}
	return finish(), nil
}
