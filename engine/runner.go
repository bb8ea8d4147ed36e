package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// RUNNER - Budgeted fan-out over employees
// =============================================================================

// planFunc turns one employee into the mutations to apply. Every mutation
// must carry a marker. Returning no mutations means nothing to do.
type planFunc func(ctx context.Context, emp leave.Employee) ([]generic.Mutation, error)

func (e *Engine) run(ctx context.Context, process Process, from, to generic.TimePoint, employees []leave.Employee, plan planFunc) *Report {
	rep := &Report{Process: process, From: from, To: to, StartedAt: e.now(), Hours: generic.ZeroHours().Value}

	runCtx := ctx
	if e.cfg.Budget.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Budget.MaxDuration)
		defer cancel()
	}

	ordered := append([]leave.Employee(nil), employees...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var (
		mu       sync.Mutex
		reserved atomic.Int64
		g        errgroup.Group
	)
	g.SetLimit(e.cfg.Concurrency)
	for _, emp := range ordered {
		emp := emp
		g.Go(func() error {
			o := e.processEmployee(runCtx, emp, plan, &reserved)
			mu.Lock()
			rep.record(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.sortFailures()
	rep.FinishedAt = e.now()

	ev := e.log.Info()
	if rep.Failed > 0 || rep.Incomplete() {
		ev = e.log.Warn()
	}
	ev.Str("process", string(process)).
		Str("window", rep.Window()).
		Int("processed", rep.Processed).
		Int("skipped", rep.Skipped).
		Int("already_done", rep.AlreadyDone).
		Int("failed", rep.Failed).
		Int("deferred", rep.Deferred).
		Str("hours", rep.Hours.String()).
		Dur("took", rep.Duration()).
		Msg("run finished")
	return rep
}

func (e *Engine) processEmployee(ctx context.Context, emp leave.Employee, plan planFunc, reserved *atomic.Int64) outcome {
	o := outcome{employee: emp.ID}
	if ctx.Err() != nil {
		o.interrupted = true
		return o
	}

	fail := func(err error) outcome {
		if ctx.Err() != nil {
			o.interrupted = true
			return o
		}
		o.err = &generic.EntityError{EntityID: emp.ID, Err: err}
		e.log.Error().Err(err).Str("employee", string(emp.ID)).Msg("employee skipped")
		return o
	}

	mutations, err := plan(ctx, emp)
	if err != nil {
		return fail(err)
	}
	if len(mutations) == 0 {
		o.skipped = true
		return o
	}

	var pending []generic.Mutation
	for _, m := range mutations {
		done, err := e.ledger.Processed(ctx, m.Marker.Key)
		if err != nil {
			return fail(err)
		}
		if !done {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return o
	}

	if limit := e.cfg.Budget.MaxEmployees; limit > 0 && reserved.Add(1) > int64(limit) {
		o.interrupted = true
		return o
	}

	for _, m := range pending {
		if ctx.Err() != nil {
			o.interrupted = true
			return o
		}
		adj, err := e.ledger.Apply(ctx, m)
		switch {
		case errors.Is(err, generic.ErrAlreadyProcessed):
			continue
		case err != nil:
			return fail(err)
		}
		e.log.Debug().
			Str("employee", string(emp.ID)).
			Str("marker", m.Marker.Key).
			Str("delta", adj.Delta.Value.String()).
			Msg("adjustment applied")
		o.applied = append(o.applied, adj)
	}
	return o
}
