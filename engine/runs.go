package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// RUN HISTORY
// =============================================================================

type RunStatus string

const (
	RunCompleted  RunStatus = "completed"
	RunIncomplete RunStatus = "incomplete" // stopped by the budget; re-run resumes
	RunFailed     RunStatus = "failed"     // aborted, e.g. on a configuration error
)

// RunRecord is one persisted batch run.
type RunRecord struct {
	ID          string
	Process     Process
	Trigger     string // "scheduler", "api", "cli"
	From        generic.TimePoint
	To          generic.TimePoint
	Status      RunStatus
	StartedAt   time.Time
	FinishedAt  time.Time
	Processed   int
	Skipped     int
	AlreadyDone int
	Failed      int
	Deferred    int
	Adjustments int
	Hours       decimal.Decimal
	Error       string
}

type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// NewRunRecord summarizes a run. rep may be nil when err aborted the run
// before it started.
func NewRunRecord(process Process, trigger string, from, to generic.TimePoint, rep *Report, err error) RunRecord {
	now := time.Now().UTC()
	run := RunRecord{
		ID:         uuid.NewString(),
		Process:    process,
		Trigger:    trigger,
		From:       from,
		To:         to,
		Status:     RunCompleted,
		StartedAt:  now,
		FinishedAt: now,
		Hours:      decimal.Zero,
	}
	if rep != nil {
		run.StartedAt = rep.StartedAt
		run.FinishedAt = rep.FinishedAt
		run.Processed = rep.Processed
		run.Skipped = rep.Skipped
		run.AlreadyDone = rep.AlreadyDone
		run.Failed = rep.Failed
		run.Deferred = rep.Deferred
		run.Adjustments = rep.Adjustments
		run.Hours = rep.Hours
		if rep.Incomplete() {
			run.Status = RunIncomplete
		}
	}
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	}
	return run
}
