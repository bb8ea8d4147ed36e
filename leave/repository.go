package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// REPOSITORY - HR configuration and roster persistence
// =============================================================================

// Catalog holds leave types, policies and schedules.
type Catalog interface {
	SaveLeaveType(ctx context.Context, lt LeaveType) error
	// FindLeaveTypeByName returns generic.ErrResourceNotFound when absent.
	FindLeaveTypeByName(ctx context.Context, name string) (*LeaveType, error)
	GetLeaveType(ctx context.Context, id generic.ResourceID) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context) ([]LeaveType, error)

	// SavePolicy replaces the policy and its rules.
	SavePolicy(ctx context.Context, p Policy) error
	GetPolicy(ctx context.Context, id generic.PolicyID) (*Policy, error)
	ListPolicies(ctx context.Context) ([]Policy, error)

	// SaveSchedule replaces the schedule and its rules.
	SaveSchedule(ctx context.Context, s WorkSchedule) error
	GetSchedule(ctx context.Context, id string) (*WorkSchedule, error)
}

// Roster holds employees.
type Roster interface {
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id generic.EntityID) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	// ListActiveEmployees is ordered by ID.
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
}

// HolidayStore holds public holidays, unique by date.
type HolidayStore interface {
	// UpsertHoliday inserts or renames the holiday on h.Date and reports
	// whether a new row was created.
	UpsertHoliday(ctx context.Context, h generic.Holiday) (bool, error)
	ListHolidays(ctx context.Context, from, to generic.TimePoint) ([]generic.Holiday, error)
}

type RequestFilter struct {
	EmployeeID generic.EntityID
	ManagerID  generic.EntityID
	Status     RequestStatus
}

// RequestStore holds leave requests.
type RequestStore interface {
	SaveRequest(ctx context.Context, r Request) error
	// DecideRequest stores r's status and decision fields only if the stored
	// request still has status from. Otherwise it returns
	// ErrInvalidTransition and changes nothing.
	DecideRequest(ctx context.Context, r Request, from RequestStatus) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// Repository is everything the HR side persists.
type Repository interface {
	Catalog
	Roster
	HolidayStore
	RequestStore
}
