/*
Package engine runs the leave batch processes: accrual, holiday compensation
and year-end settlement.

PURPOSE:
  The leave package decides. The generic ledger applies. The engine sits in
  between: it loads the roster, asks leave for a decision per employee, turns
  each decision into a ledger Mutation carrying a processed-period marker and
  applies it.

ERROR TAXONOMY:
  Configuration   missing leave type, employee referencing a missing policy.
                  The run aborts with *generic.ConfigError before any
                  balance changes.
  Per-employee    missing hire date, missing or malformed schedule, a store
                  failure for that employee. Recorded in Report.Failures as
                  *generic.EntityError; the batch continues.
  Idempotence     marker already present. Counted as AlreadyDone, never an
                  error.

EXECUTION BUDGET:
  Budget.MaxDuration bounds the wall-clock time of one run. Budget.MaxEmployees
  bounds how many employees may be mutated in one run. Employees not reached
  are reported as Deferred. Re-running picks up where the last run stopped
  because finished employees are skipped through their markers.

CONCURRENCY:
  Employees are independent. Config.Concurrency employees run in parallel
  through an errgroup; each mutation is one store transaction, which
  serializes writes to the same balance.

SEE ALSO:
  - accrual.go, compensation.go, settlement.go: The three processes
  - catchup.go: Replaying a date range
  - requests.go: Leave request approval
*/
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Roster is the read side of HR data the batch processes need.
type Roster interface {
	FindLeaveTypeByName(ctx context.Context, name string) (*leave.LeaveType, error)
	ListActiveEmployees(ctx context.Context) ([]leave.Employee, error)
	GetPolicy(ctx context.Context, id generic.PolicyID) (*leave.Policy, error)
	GetSchedule(ctx context.Context, id string) (*leave.WorkSchedule, error)
	ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

type Budget struct {
	MaxDuration  time.Duration // 0: unbounded
	MaxEmployees int           // 0: unbounded
}

type Config struct {
	// AnnualLeaveType is the leave type accrual and settlement target.
	AnnualLeaveType string
	// CompensationLeaveType receives holiday compensation. Empty means
	// AnnualLeaveType.
	CompensationLeaveType string
	// DefaultEligibleMonths applies to employees without their own
	// compensation waiting period.
	DefaultEligibleMonths int
	Hours                 leave.HoursConfig
	Budget                Budget
	Concurrency           int
}

func DefaultConfig() Config {
	return Config{
		AnnualLeaveType: leave.AnnualLeaveName,
		Hours:           leave.DefaultHoursConfig(),
		Concurrency:     1,
	}
}

func (c Config) compensationLeaveType() string {
	if c.CompensationLeaveType != "" {
		return c.CompensationLeaveType
	}
	return c.AnnualLeaveType
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	roster Roster
	ledger generic.Ledger
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(roster Roster, ledger generic.Ledger, cfg Config, opts ...Option) *Engine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Hours.DefaultDailyHours.IsZero() {
		cfg.Hours = leave.DefaultHoursConfig()
	}
	e := &Engine{
		roster: roster,
		ledger: ledger,
		cfg:    cfg,
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// =============================================================================
// LOOKUPS
// =============================================================================

func (e *Engine) leaveType(ctx context.Context, name string) (*leave.LeaveType, error) {
	lt, err := e.roster.FindLeaveTypeByName(ctx, name)
	if errors.Is(err, generic.ErrResourceNotFound) {
		return nil, &generic.ConfigError{Kind: "leave type", Name: name, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return lt, nil
}

// withPolicies keeps employees with a policy and resolves each policy once.
func (e *Engine) withPolicies(ctx context.Context, employees []leave.Employee) ([]leave.Employee, map[generic.PolicyID]leave.Policy, error) {
	var kept []leave.Employee
	for _, emp := range employees {
		if emp.HasPolicy() {
			kept = append(kept, emp)
		}
	}
	policies, err := e.resolvePolicies(ctx, kept)
	if err != nil {
		return nil, nil, err
	}
	return kept, policies, nil
}

// resolvePolicies loads every policy referenced by employees. A dangling
// reference is a configuration error.
func (e *Engine) resolvePolicies(ctx context.Context, employees []leave.Employee) (map[generic.PolicyID]leave.Policy, error) {
	policies := make(map[generic.PolicyID]leave.Policy)
	for _, emp := range employees {
		if !emp.HasPolicy() {
			continue
		}
		if _, ok := policies[emp.PolicyID]; ok {
			continue
		}
		p, err := e.policy(ctx, emp.PolicyID)
		if err != nil {
			return nil, err
		}
		policies[emp.PolicyID] = p
	}
	return policies, nil
}

func (e *Engine) policy(ctx context.Context, id generic.PolicyID) (leave.Policy, error) {
	p, err := e.roster.GetPolicy(ctx, id)
	if errors.Is(err, generic.ErrPolicyNotFound) {
		return leave.Policy{}, &generic.ConfigError{Kind: "policy", Name: string(id), Err: err}
	}
	if err != nil {
		return leave.Policy{}, err
	}
	return p.WithDefaults(), nil
}

// schedule returns nil for employees without one. A dangling reference is
// an error for that employee only.
func (e *Engine) schedule(ctx context.Context, emp leave.Employee) (*leave.WorkSchedule, error) {
	if !emp.HasSchedule() {
		return nil, nil
	}
	s, err := e.roster.GetSchedule(ctx, emp.ScheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// dailyHours resolves the employee's day length for DAYS conversion.
func (e *Engine) dailyHours(ctx context.Context, emp leave.Employee, p leave.Policy) (decimal.Decimal, error) {
	if p.AccrualUnit != generic.UnitDays {
		return e.cfg.Hours.DefaultDailyHours, nil
	}
	s, err := e.schedule(ctx, emp)
	if err != nil {
		return decimal.Zero, err
	}
	return e.cfg.Hours.DailyHours(s), nil
}
