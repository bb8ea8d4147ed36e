package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE REQUEST - Pending → Approved | Rejected
// =============================================================================

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type Request struct {
	ID          string
	EmployeeID  generic.EntityID
	LeaveTypeID generic.ResourceID
	Start       time.Time
	End         time.Time
	Reason      string
	Hours       decimal.Decimal
	Status      RequestStatus
	DecidedBy   generic.EntityID
	DecidedAt   *time.Time
	Comment     string
	CreatedAt   time.Time
}

func (r *Request) IsTerminal() bool {
	return r.Status == RequestApproved || r.Status == RequestRejected
}

// Approve moves a pending request to approved. Only the employee's manager may.
func (r *Request) Approve(actor generic.EntityID, employee Employee, at time.Time, comment string) error {
	return r.decide(RequestApproved, actor, employee, at, comment)
}

// Reject moves a pending request to rejected. Only the employee's manager may.
func (r *Request) Reject(actor generic.EntityID, employee Employee, at time.Time, comment string) error {
	return r.decide(RequestRejected, actor, employee, at, comment)
}

func (r *Request) decide(to RequestStatus, actor generic.EntityID, employee Employee, at time.Time, comment string) error {
	if r.Status != RequestPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	if employee.ManagerID == "" || actor != employee.ManagerID {
		return ErrNotManager
	}
	r.Status = to
	r.DecidedBy = actor
	r.DecidedAt = &at
	r.Comment = comment
	return nil
}

// =============================================================================
// WORK HOURS - How many hours a request actually takes
// =============================================================================

// WorkHours returns the hours to deduct for a leave from start to end.
// Without a schedule it is the raw duration. With one, it sums the overlap
// of [start, end] with each scheduled shift, skipping rest days and public
// holidays. Shifts are interpreted in start's location. Rounded to 2 places.
func WorkHours(start, end time.Time, schedule *WorkSchedule, holidays generic.HolidayCalendar) (decimal.Decimal, error) {
	if !end.After(start) {
		return decimal.Zero, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidRequest, end, start)
	}
	if schedule == nil {
		return decimal.NewFromFloat(end.Sub(start).Hours()).Round(2), nil
	}

	loc := start.Location()
	end = end.In(loc)
	total := time.Duration(0)
	for day := generic.DateOf(start); !day.After(generic.DateOf(end)); day = day.AddDays(1) {
		if holidays != nil && holidays.IsHoliday(day) {
			continue
		}
		rule, ok := schedule.RuleFor(day.Weekday())
		if !ok {
			continue
		}
		shiftStart := day.At(rule.Start.Hour, rule.Start.Minute, loc)
		shiftEnd := day.At(rule.End.Hour, rule.End.Minute, loc)

		from := latest(start, shiftStart)
		to := earliest(end, shiftEnd)
		if from.Before(to) {
			total += to.Sub(from)
		}
	}
	return decimal.NewFromFloat(total.Hours()).Round(2), nil
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
