/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the leave
  model from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags; decodeJSON rejects
  unknown fields and runs the validator before a handler sees the body.
  Hours travel as decimal strings ("7.50") so no precision is lost.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyDoc, the policy wire format
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type EmployeeDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	HireDate   string `json:"hire_date,omitempty"`
	Status     string `json:"status"`
	PolicyID   string `json:"policy_id,omitempty"`
	ScheduleID string `json:"schedule_id,omitempty"`
	ManagerID  string `json:"manager_id,omitempty"`
}

type BalanceDTO struct {
	LeaveTypeID string `json:"leave_type_id"`
	LeaveType   string `json:"leave_type"`
	Hours       string `json:"hours"`
	UpdatedAt   string `json:"updated_at"`
}

type AdjustmentDTO struct {
	ID           string `json:"id"`
	LeaveTypeID  string `json:"leave_type_id"`
	PolicyID     string `json:"policy_id,omitempty"`
	Kind         string `json:"kind"`
	Hours        string `json:"hours"`
	BalanceAfter string `json:"balance_after"`
	Reason       string `json:"reason"`
	ReferenceID  string `json:"reference_id,omitempty"`
	EffectiveAt  string `json:"effective_at"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at"`
}

type HolidayDTO struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Name string `json:"name"`
}

type ImportResultDTO struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped,omitempty"`
}

type FailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

type ReportDTO struct {
	Process     string       `json:"process"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Processed   int          `json:"processed"`
	Skipped     int          `json:"skipped"`
	AlreadyDone int          `json:"already_done"`
	Failed      int          `json:"failed"`
	Deferred    int          `json:"deferred"`
	Incomplete  bool         `json:"incomplete"`
	Adjustments int          `json:"adjustments"`
	Hours       string       `json:"hours"`
	Failures    []FailureDTO `json:"failures,omitempty"`
}

type RunDTO struct {
	ID          string `json:"id"`
	Process     string `json:"process"`
	Trigger     string `json:"trigger"`
	From        string `json:"from"`
	To          string `json:"to"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
	Processed   int    `json:"processed"`
	Failed      int    `json:"failed"`
	Deferred    int    `json:"deferred"`
	Adjustments int    `json:"adjustments"`
	Hours       string `json:"hours"`
	Error       string `json:"error,omitempty"`
}

type RequestDTO struct {
	ID          string  `json:"id"`
	EmployeeID  string  `json:"employee_id"`
	LeaveTypeID string  `json:"leave_type_id"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Hours       string  `json:"hours"`
	Reason      string  `json:"reason,omitempty"`
	Status      string  `json:"status"`
	DecidedBy   string  `json:"decided_by,omitempty"`
	DecidedAt   *string `json:"decided_at,omitempty"`
	Comment     string  `json:"comment,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

type ManualAdjustmentRequest struct {
	LeaveTypeID string `json:"leave_type_id" validate:"required"`
	Hours       string `json:"hours" validate:"required,number"`
	Reason      string `json:"reason" validate:"required"`
	EffectiveAt string `json:"effective_at" validate:"omitempty,datetime=2006-01-02"`
	CreatedBy   string `json:"created_by" validate:"required"`
}

type CreateHolidayRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Name string `json:"name" validate:"required"`
}

// JobRequest carries the window for a batch run. Empty dates mean today;
// compensation defaults to yesterday, matching the scheduled run.
type JobRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	From string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

type SubmitLeaveRequest struct {
	EmployeeID  string    `json:"employee_id" validate:"required"`
	LeaveTypeID string    `json:"leave_type_id" validate:"required"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	Reason      string    `json:"reason"`
}

type DecisionRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Comment string `json:"comment"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:         string(e.ID),
		Name:       e.Name,
		Email:      e.Email,
		Status:     string(e.Status),
		PolicyID:   string(e.PolicyID),
		ScheduleID: e.ScheduleID,
		ManagerID:  string(e.ManagerID),
	}
	if !e.HireDate.IsZero() {
		dto.HireDate = e.HireDate.String()
	}
	return dto
}

func toAdjustmentDTO(a generic.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:           string(a.ID),
		LeaveTypeID:  string(a.ResourceID),
		PolicyID:     string(a.PolicyID),
		Kind:         string(a.Kind),
		Hours:        a.Delta.Value.StringFixed(2),
		BalanceAfter: a.BalanceAfter.Value.StringFixed(2),
		Reason:       a.Reason,
		ReferenceID:  a.ReferenceID,
		EffectiveAt:  a.EffectiveAt.String(),
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{ID: h.ID, Date: h.Date.String(), Name: h.Name}
}

func toReportDTO(r *engine.Report) ReportDTO {
	dto := ReportDTO{
		Process:     string(r.Process),
		From:        r.From.String(),
		To:          r.To.String(),
		Processed:   r.Processed,
		Skipped:     r.Skipped,
		AlreadyDone: r.AlreadyDone,
		Failed:      r.Failed,
		Deferred:    r.Deferred,
		Incomplete:  r.Incomplete(),
		Adjustments: r.Adjustments,
		Hours:       r.Hours.StringFixed(2),
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, FailureDTO{EmployeeID: string(f.EmployeeID), Error: f.Error})
	}
	return dto
}

func toRunDTO(r engine.RunRecord) RunDTO {
	return RunDTO{
		ID:          r.ID,
		Process:     string(r.Process),
		Trigger:     r.Trigger,
		From:        r.From.String(),
		To:          r.To.String(),
		Status:      string(r.Status),
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:  r.FinishedAt.UTC().Format(time.RFC3339),
		Processed:   r.Processed,
		Failed:      r.Failed,
		Deferred:    r.Deferred,
		Adjustments: r.Adjustments,
		Hours:       r.Hours.StringFixed(2),
		Error:       r.Error,
	}
}

func toRequestDTO(r leave.Request) RequestDTO {
	dto := RequestDTO{
		ID:          r.ID,
		EmployeeID:  string(r.EmployeeID),
		LeaveTypeID: string(r.LeaveTypeID),
		Start:       r.Start.Format(time.RFC3339),
		End:         r.End.Format(time.RFC3339),
		Hours:       r.Hours.StringFixed(2),
		Reason:      r.Reason,
		Status:      string(r.Status),
		DecidedBy:   string(r.DecidedBy),
		Comment:     r.Comment,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.DecidedAt != nil {
		s := r.DecidedAt.UTC().Format(time.RFC3339)
		dto.DecidedAt = &s
	}
	return dto
}
