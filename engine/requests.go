package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEAVE REQUESTS - Submit, approve, reject
// =============================================================================

// Notifier tells the employee a request was decided.
type Notifier interface {
	NotifyDecision(ctx context.Context, r leave.Request, employee leave.Employee) error
}

// RequestRepository is what the request service reads and writes.
type RequestRepository interface {
	leave.RequestStore
	GetEmployee(ctx context.Context, id generic.EntityID) (*leave.Employee, error)
	GetLeaveType(ctx context.Context, id generic.ResourceID) (*leave.LeaveType, error)
	GetSchedule(ctx context.Context, id string) (*leave.WorkSchedule, error)
	ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error)
}

type SubmitInput struct {
	EmployeeID  generic.EntityID
	LeaveTypeID generic.ResourceID
	Start       time.Time
	End         time.Time
	Reason      string
}

// Requests drives the request state machine. Approval deducts the request's
// hours from the balance through the ledger, marked request:<id>.
type Requests struct {
	Repo     RequestRepository
	Ledger   generic.Ledger
	Notifier Notifier // optional
	Log      zerolog.Logger
	Now      func() time.Time
	NewID    func() string
}

func NewRequests(repo RequestRepository, ledger generic.Ledger, notifier Notifier) *Requests {
	return &Requests{
		Repo:     repo,
		Ledger:   ledger,
		Notifier: notifier,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// Submit creates a pending request. Hours are the working time the request
// covers under the employee's schedule, excluding public holidays.
func (s *Requests) Submit(ctx context.Context, in SubmitInput) (*leave.Request, error) {
	emp, err := s.Repo.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Repo.GetLeaveType(ctx, in.LeaveTypeID); err != nil {
		return nil, err
	}

	var schedule *leave.WorkSchedule
	if emp.HasSchedule() {
		if schedule, err = s.Repo.GetSchedule(ctx, emp.ScheduleID); err != nil {
			return nil, err
		}
	}
	holidays, err := s.Repo.ListHolidays(ctx, generic.DateOf(in.Start), generic.DateOf(in.End))
	if err != nil {
		return nil, err
	}

	hours, err := leave.WorkHours(in.Start, in.End, schedule, generic.NewHolidaySet(holidays))
	if err != nil {
		return nil, err
	}
	if !hours.IsPositive() {
		return nil, fmt.Errorf("%w: request covers no working time", leave.ErrInvalidRequest)
	}

	r := leave.Request{
		ID:          s.NewID(),
		EmployeeID:  emp.ID,
		LeaveTypeID: in.LeaveTypeID,
		Start:       in.Start,
		End:         in.End,
		Reason:      in.Reason,
		Hours:       hours,
		Status:      leave.RequestPending,
		CreatedAt:   s.Now(),
	}
	if err := s.Repo.SaveRequest(ctx, r); err != nil {
		return nil, err
	}
	s.Log.Info().Str("request", r.ID).Str("employee", string(r.EmployeeID)).
		Str("hours", r.Hours.String()).Msg("leave request submitted")
	return &r, nil
}

// Approve marks the request approved and deducts its hours. The decision is
// stored first and only if the request is still pending, so a concurrent
// decision on the same request fails with leave.ErrInvalidTransition. If the
// deduction fails the request is reopened.
func (s *Requests) Approve(ctx context.Context, id string, actor generic.EntityID, comment string) (*leave.Request, error) {
	r, emp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Approve(actor, *emp, s.Now(), comment); err != nil {
		return nil, err
	}
	if err := s.Repo.DecideRequest(ctx, *r, leave.RequestPending); err != nil {
		return nil, err
	}

	_, err = s.Ledger.Apply(ctx, generic.Mutation{
		EntityID:    r.EmployeeID,
		ResourceID:  r.LeaveTypeID,
		Kind:        generic.KindConsumption,
		Reason:      fmt.Sprintf("Leave request %s approved by %s", r.ID, actor),
		ReferenceID: r.ID,
		EffectiveAt: generic.DateOf(r.Start),
		CreatedBy:   string(actor),
		Rule:        generic.Increment(generic.Hours(r.Hours.Neg())),
		Marker:      &generic.Marker{Key: generic.MarkerKey("request", r.ID), Process: "request", Period: r.ID},
	})
	if err != nil && !errors.Is(err, generic.ErrAlreadyProcessed) {
		s.reopen(ctx, r)
		return nil, err
	}
	return s.decided(ctx, r, emp)
}

// Reject marks the request rejected. Balances are untouched.
func (s *Requests) Reject(ctx context.Context, id string, actor generic.EntityID, comment string) (*leave.Request, error) {
	r, emp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Reject(actor, *emp, s.Now(), comment); err != nil {
		return nil, err
	}
	if err := s.Repo.DecideRequest(ctx, *r, leave.RequestPending); err != nil {
		return nil, err
	}
	return s.decided(ctx, r, emp)
}

// Pending lists the requests waiting on manager.
func (s *Requests) Pending(ctx context.Context, manager generic.EntityID) ([]leave.Request, error) {
	return s.Repo.ListRequests(ctx, leave.RequestFilter{ManagerID: manager, Status: leave.RequestPending})
}

func (s *Requests) load(ctx context.Context, id string) (*leave.Request, *leave.Employee, error) {
	r, err := s.Repo.GetRequest(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	emp, err := s.Repo.GetEmployee(ctx, r.EmployeeID)
	if err != nil {
		return nil, nil, err
	}
	return r, emp, nil
}

// reopen puts an approved request back to pending after its deduction failed.
func (s *Requests) reopen(ctx context.Context, r *leave.Request) {
	pending := *r
	pending.Status = leave.RequestPending
	pending.DecidedBy = ""
	pending.DecidedAt = nil
	pending.Comment = ""
	if err := s.Repo.DecideRequest(ctx, pending, r.Status); err != nil {
		s.Log.Error().Err(err).Str("request", r.ID).Msg("failed to reopen request")
	}
}

func (s *Requests) decided(ctx context.Context, r *leave.Request, emp *leave.Employee) (*leave.Request, error) {
	s.Log.Info().Str("request", r.ID).Str("status", string(r.Status)).
		Str("by", string(r.DecidedBy)).Msg("leave request decided")

	if s.Notifier != nil {
		if err := s.Notifier.NotifyDecision(ctx, *r, *emp); err != nil {
			s.Log.Warn().Err(err).Str("request", r.ID).Msg("decision notification failed")
		}
	}
	return r, nil
}
