/*
scheduler.go - Daily batch job scheduler

PURPOSE:
  Runs the batch processes once a day at their configured local hour:
  settlement, then accrual for today, then holiday compensation for
  yesterday. Every run is recorded through engine.Jobs.

DESIGN:
  - A background goroutine ticks every CheckInterval
  - On each tick, a process whose hour has passed and which has not yet
    finished today is run
  - A run cut short by the budget is retried on the next tick and resumes
    through the ledger markers; transient failures are retried the same way
  - A run that finished with failed employees is retried on the next tick
    up to MaxAttempts times a day; employees already done are skipped
  - Configuration errors mark the day done so a broken setup does not
    produce a failed run every tick
  - "Today" is the date in Location; days missed while the process was
    down are recovered with catch-up, not here

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)
  - AccrualHour, CompensationHour, SettlementHour: Local hour (0-23)
  - MaxAttempts: Runs per process and day while employees fail (default: 3)

USAGE:
  scheduler := NewJobScheduler(jobs, time.UTC, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - engine/jobs.go: Run recording
  - engine/catchup.go: Replaying missed days
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
)

// JobScheduler handles the daily batch runs.
type JobScheduler struct {
	Jobs          *engine.Jobs
	CheckInterval time.Duration
	Enabled       bool
	Location      *time.Location

	SettlementHour   int
	AccrualHour      int
	CompensationHour int
	MaxAttempts      int

	Now func() time.Time

	log      zerolog.Logger
	finished map[engine.Process]generic.TimePoint
	attempts map[engine.Process]dayAttempts

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewJobScheduler(jobs *engine.Jobs, loc *time.Location, log zerolog.Logger) *JobScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &JobScheduler{
		Jobs:             jobs,
		CheckInterval:    time.Minute,
		Enabled:          true,
		Location:         loc,
		SettlementHour:   0,
		AccrualHour:      1,
		CompensationHour: 2,
		MaxAttempts:      3,
		Now:              time.Now,
		log:              log.With().Str("component", "scheduler").Logger(),
		finished:         make(map[engine.Process]generic.TimePoint),
		attempts:         make(map[engine.Process]dayAttempts),
	}
}

// Start begins the scheduler.
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info().Msg("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(ctx)

	s.log.Info().Dur("interval", s.CheckInterval).Msg("scheduler started")
}

// Stop stops the scheduler and waits for a run in progress. The run's
// context is cancelled, so a long batch stops at the next employee.
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info().Msg("scheduler stopped")
}

func (s *JobScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunDue(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunDue(ctx)
		case <-s.stop:
			return
		}
	}
}

type scheduledJob struct {
	process engine.Process
	hour    int
	// window maps today onto the run's dates.
	window func(today generic.TimePoint) (generic.TimePoint, generic.TimePoint)
}

func (s *JobScheduler) schedule() []scheduledJob {
	sameDay := func(today generic.TimePoint) (generic.TimePoint, generic.TimePoint) { return today, today }
	return []scheduledJob{
		{process: engine.ProcessSettlement, hour: s.SettlementHour, window: sameDay},
		{process: engine.ProcessAccrual, hour: s.AccrualHour, window: sameDay},
		{process: engine.ProcessCompensation, hour: s.CompensationHour, window: func(today generic.TimePoint) (generic.TimePoint, generic.TimePoint) {
			y := today.AddDays(-1)
			return y, y
		}},
	}
}

// RunDue runs every process whose hour has passed and which has not
// finished today. It returns the processes it ran.
func (s *JobScheduler) RunDue(ctx context.Context) []engine.Process {
	now := s.Now().In(s.Location)
	today := generic.DateOf(now)

	var ran []engine.Process
	for _, job := range s.schedule() {
		if ctx.Err() != nil {
			return ran
		}
		if now.Hour() < job.hour || s.finished[job.process].Equal(today) {
			continue
		}

		from, to := job.window(today)
		rep, err := s.Jobs.Run(ctx, job.process, engine.TriggerScheduler, from, to)
		ran = append(ran, job.process)

		switch {
		case err != nil && generic.IsConfigError(err):
			s.log.Error().Err(err).Str("process", string(job.process)).
				Msg("configuration error, skipping until tomorrow")
			s.finished[job.process] = today
		case err != nil:
			s.log.Warn().Err(err).Str("process", string(job.process)).Msg("run failed, will retry")
		case rep.Incomplete():
			s.log.Info().Str("process", string(job.process)).Int("deferred", rep.Deferred).
				Msg("run incomplete, resuming next tick")
		case rep.Failed > 0:
			n := s.attempt(job.process, today)
			if n < s.MaxAttempts {
				s.log.Warn().Str("process", string(job.process)).Int("failed", rep.Failed).
					Int("attempt", n).Msg("employees failed, will retry")
				continue
			}
			s.log.Error().Str("process", string(job.process)).Int("failed", rep.Failed).
				Int("attempt", n).Msg("employees still failing, skipping until tomorrow")
			s.finished[job.process] = today
		default:
			s.finished[job.process] = today
		}
	}
	return ran
}

type dayAttempts struct {
	day generic.TimePoint
	n   int
}

// attempt counts a run of process that ended with failed employees today
// and returns the count so far.
func (s *JobScheduler) attempt(process engine.Process, today generic.TimePoint) int {
	a := s.attempts[process]
	if !a.day.Equal(today) {
		a = dayAttempts{day: today}
	}
	a.n++
	s.attempts[process] = a
	return a.n
}

// NextCheck returns when the next scheduled check will occur.
func (s *JobScheduler) NextCheck() time.Time {
	return s.Now().Add(s.CheckInterval)
}
