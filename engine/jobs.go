package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// JOBS - Run a process and record it
// =============================================================================

// Run triggers.
const (
	TriggerScheduler = "scheduler"
	TriggerAPI       = "api"
	TriggerCLI       = "cli"
)

// Jobs is the entry point the scheduler, HTTP API and CLI share. Every run
// it starts is saved to Runs, including runs that fail.
type Jobs struct {
	Engine *Engine
	Runs   RunStore
	Log    zerolog.Logger
}

func NewJobs(e *Engine, runs RunStore, log zerolog.Logger) *Jobs {
	return &Jobs{Engine: e, Runs: runs, Log: log}
}

// ParseProcess accepts the process names used in URLs and CLI commands.
func ParseProcess(s string) (Process, error) {
	switch p := Process(s); p {
	case ProcessAccrual, ProcessCompensation, ProcessSettlement:
		return p, nil
	}
	return "", fmt.Errorf("unknown process %q", s)
}

// Run executes one process. Accrual and settlement handle a single day and
// use from; compensation covers [from, to].
func (j *Jobs) Run(ctx context.Context, process Process, trigger string, from, to generic.TimePoint) (*Report, error) {
	var (
		rep *Report
		err error
	)
	switch process {
	case ProcessAccrual:
		to = from
		rep, err = j.Engine.Accrue(ctx, from)
	case ProcessSettlement:
		to = from
		rep, err = j.Engine.Settle(ctx, from)
	case ProcessCompensation:
		rep, err = j.Engine.CompensateHolidays(ctx, from, to)
	default:
		return nil, fmt.Errorf("unknown process %q", process)
	}
	j.record(ctx, NewRunRecord(process, trigger, from, to, rep, err))
	return rep, err
}

// CatchUp replays [from, to] and records one run per process.
func (j *Jobs) CatchUp(ctx context.Context, trigger string, from, to generic.TimePoint) ([]*Report, error) {
	reps, err := j.Engine.CatchUp(ctx, from, to)
	for _, rep := range reps {
		j.record(ctx, NewRunRecord(rep.Process, trigger, from, to, rep, err))
	}
	return reps, err
}

func (j *Jobs) record(ctx context.Context, run RunRecord) {
	log := j.Log.With().Str("process", string(run.Process)).Str("trigger", run.Trigger).
		Str("window", run.From.String()+".."+run.To.String()).Logger()

	switch run.Status {
	case RunFailed:
		log.Error().Str("error", run.Error).Msg("run failed")
	default:
		log.Info().
			Str("status", string(run.Status)).
			Int("processed", run.Processed).
			Int("skipped", run.Skipped).
			Int("already_done", run.AlreadyDone).
			Int("failed", run.Failed).
			Int("deferred", run.Deferred).
			Str("hours", run.Hours.StringFixed(2)).
			Msg("run finished")
	}

	if j.Runs == nil {
		return
	}
	// A cancelled request still gets its run saved.
	if err := j.Runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("failed to save run record")
	}
}
