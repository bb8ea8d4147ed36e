package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// RUN HISTORY (engine.RunStore interface)
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run engine.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (
			id, process, triggered_by, window_from, window_to, status, started_at, finished_at,
			processed, skipped, already_done, failed, deferred, adjustments, hours, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Process), run.Trigger, run.From.String(), run.To.String(),
		string(run.Status), formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Processed, run.Skipped, run.AlreadyDone, run.Failed, run.Deferred, run.Adjustments,
		run.Hours.String(), run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]engine.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, process, triggered_by, window_from, window_to, status, started_at, finished_at,
		       processed, skipped, already_done, failed, deferred, adjustments, hours, error
		FROM job_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []engine.RunRecord
	for rows.Next() {
		var run engine.RunRecord
		var process, from, to, status, started, finished, hours string
		err := rows.Scan(&run.ID, &process, &run.Trigger, &from, &to, &status, &started, &finished,
			&run.Processed, &run.Skipped, &run.AlreadyDone, &run.Failed, &run.Deferred,
			&run.Adjustments, &hours, &run.Error)
		if err != nil {
			return nil, err
		}
		if run.Hours, err = parseDecimal(hours); err != nil {
			return nil, err
		}
		run.Process = engine.Process(process)
		run.From, _ = generic.ParseDate(from)
		run.To, _ = generic.ParseDate(to)
		run.Status = engine.RunStatus(status)
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		result = append(result, run)
	}
	return result, rows.Err()
}
