/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes balances, the adjustment audit trail, policies, holidays, batch
  jobs and leave requests over REST. Handlers parse and validate input,
  delegate to the ledger, engine and request service, and serialize the
  result.

ENDPOINTS:
  Employees:
    GET    /api/employees                       List employees
    GET    /api/employees/{id}                  Employee details
    GET    /api/employees/{id}/balances         Current balances
    GET    /api/employees/{id}/adjustments      Audit trail (?leave_type=&kind=&from=&to=&limit=)
    POST   /api/employees/{id}/adjustments      Manual HR correction

  Policies:
    GET    /api/policies                        List policies
    POST   /api/policies                        Create or replace a policy

  Holidays:
    GET    /api/holidays                        List (?year= or ?from=&to=)
    POST   /api/holidays                        Upsert one holiday by date
    POST   /api/holidays/import                 Pull the public holiday feed

  Jobs:
    POST   /api/jobs/{accrual|compensation|settlement}
    POST   /api/jobs/catchup
    GET    /api/jobs/runs                       Run history (?limit=)

  Requests:
    POST   /api/requests                        Submit a leave request
    GET    /api/requests/pending?manager=       Pending requests for a manager
    POST   /api/requests/{id}/approve
    POST   /api/requests/{id}/reject

ERROR HANDLING:
  Errors are returned as JSON with a status chosen by statusFor:
  - 400: Validation errors, invalid input
  - 403: Someone other than the manager decided a request
  - 404: Record not found
  - 409: Conflict, or a request that was already decided
  - 422: Missing configuration (leave type, policy) aborted a run
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Actor IDs are taken from the request body.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/holidays"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HolidayImporter pulls the public holiday feed into the store.
type HolidayImporter interface {
	Import(ctx context.Context) (holidays.Result, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo     leave.Repository
	Ledger   generic.Ledger
	Jobs     *engine.Jobs
	Requests *engine.Requests
	Importer HolidayImporter // optional
	Policies *factory.PolicyFactory

	// Today decides default job dates. Defaults to the UTC date.
	Today func() generic.TimePoint

	validate *validator.Validate
}

func NewHandler(repo leave.Repository, ledger generic.Ledger, jobs *engine.Jobs, requests *engine.Requests, importer HolidayImporter) *Handler {
	return &Handler{
		Repo:     repo,
		Ledger:   ledger,
		Jobs:     jobs,
		Requests: requests,
		Importer: importer,
		Policies: factory.NewPolicyFactory(),
		Today:    generic.Today,
		validate: validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Repo.ListEmployees(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list employees", err)
		return
	}
	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		dtos = append(dtos, toEmployeeDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Repo.GetEmployee(r.Context(), generic.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// GetBalances returns every balance the employee holds, with leave type names.
// GET /api/employees/{id}/balances
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	emp, err := h.Repo.GetEmployee(ctx, generic.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get employee", err)
		return
	}
	balances, err := h.Ledger.Balances(ctx, emp.ID)
	if err != nil {
		h.fail(w, r, "Failed to load balances", err)
		return
	}
	names, err := h.leaveTypeNames(ctx)
	if err != nil {
		h.fail(w, r, "Failed to load leave types", err)
		return
	}

	dtos := make([]BalanceDTO, 0, len(balances))
	for _, b := range balances {
		dtos = append(dtos, BalanceDTO{
			LeaveTypeID: string(b.ResourceID),
			LeaveType:   names[b.ResourceID],
			Hours:       b.Amount.Value.StringFixed(2),
			UpdatedAt:   b.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAdjustments returns the employee's audit trail, oldest first.
// GET /api/employees/{id}/adjustments
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	emp, err := h.Repo.GetEmployee(ctx, generic.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get employee", err)
		return
	}

	q := r.URL.Query()
	filter := generic.AdjustmentFilter{
		EntityID:   emp.ID,
		ResourceID: generic.ResourceID(q.Get("leave_type")),
	}
	for _, k := range q["kind"] {
		filter.Kinds = append(filter.Kinds, generic.AdjustmentKind(k))
	}
	if filter.From, err = optionalDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	if filter.To, err = optionalDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	if filter.Limit, err = optionalInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	adjs, err := h.Ledger.Adjustments(ctx, filter)
	if err != nil {
		h.fail(w, r, "Failed to load adjustments", err)
		return
	}
	dtos := make([]AdjustmentDTO, 0, len(adjs))
	for _, a := range adjs {
		dtos = append(dtos, toAdjustmentDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment records a manual HR correction. It carries no marker:
// every call is a new adjustment.
// POST /api/employees/{id}/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ManualAdjustmentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	emp, err := h.Repo.GetEmployee(ctx, generic.EntityID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Failed to get employee", err)
		return
	}
	lt, err := h.Repo.GetLeaveType(ctx, generic.ResourceID(req.LeaveTypeID))
	if err != nil {
		h.fail(w, r, "Failed to get leave type", err)
		return
	}
	delta, err := decimal.NewFromString(req.Hours)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hours", err)
		return
	}
	effective := h.Today()
	if req.EffectiveAt != "" {
		if effective, err = generic.ParseDate(req.EffectiveAt); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective date", err)
			return
		}
	}

	adj, err := h.Ledger.Apply(ctx, generic.Mutation{
		EntityID:    emp.ID,
		ResourceID:  lt.ID,
		PolicyID:    emp.PolicyID,
		Kind:        generic.KindManual,
		Reason:      req.Reason,
		EffectiveAt: effective,
		CreatedBy:   req.CreatedBy,
		Rule:        generic.Increment(generic.Hours(delta)),
	})
	if err != nil {
		h.fail(w, r, "Failed to apply adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adj))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Repo.ListPolicies(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list policies", err)
		return
	}
	docs := make([]factory.PolicyDoc, 0, len(policies))
	for _, p := range policies {
		docs = append(docs, h.Policies.ToDoc(p))
	}
	writeJSON(w, http.StatusOK, docs)
}

// CreatePolicy saves a policy definition, replacing any policy with the
// same ID together with its rules.
// POST /api/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var doc factory.PolicyDoc
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	p, err := h.Policies.FromDoc(doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy", err)
		return
	}
	if err := h.Repo.SavePolicy(r.Context(), p); err != nil {
		h.fail(w, r, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Policies.ToDoc(p))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays in a window, the current year by default.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year := h.Today().Year()
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}
	from := generic.NewTimePoint(year, 1, 1)
	to := generic.NewTimePoint(year, 12, 31)
	f, err := optionalDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	if f != nil {
		from = *f
	}
	t, err := optionalDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	if t != nil {
		to = *t
	}

	list, err := h.Repo.ListHolidays(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, "Failed to list holidays", err)
		return
	}
	dtos := make([]HolidayDTO, 0, len(list))
	for _, hol := range list {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday upserts by date: 201 when created, 200 when renamed.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	hol := generic.Holiday{Date: date, Name: req.Name}
	created, err := h.Repo.UpsertHoliday(r.Context(), hol)
	if err != nil {
		h.fail(w, r, "Failed to save holiday", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toHolidayDTO(hol))
}

// POST /api/holidays/import
func (h *Handler) ImportHolidays(w http.ResponseWriter, r *http.Request) {
	if h.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, "Holiday import is not configured", nil)
		return
	}
	res, err := h.Importer.Import(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "Holiday import failed", err)
		return
	}
	dto := ImportResultDTO{Created: res.Created, Updated: res.Updated}
	for _, s := range res.Skipped {
		dto.Skipped = append(dto.Skipped, fmt.Sprintf("%s (%s): %s", s.Summary, s.Raw, s.Reason))
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// JOB HANDLERS
// =============================================================================

// RunJob triggers one batch process. A report that hit the run budget is
// still 200 with "incomplete": true; calling again resumes.
// POST /api/jobs/{process}
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	process, err := engine.ParseProcess(chi.URLParam(r, "process"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown job", err)
		return
	}
	var req JobRequest
	if !h.decodeOptionalJSON(w, r, &req) {
		return
	}

	today := h.Today()
	def := today
	if process == engine.ProcessCompensation {
		def = today.AddDays(-1)
	}
	from, to, err := jobWindow(req, def)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job window", err)
		return
	}

	rep, err := h.Jobs.Run(r.Context(), process, engine.TriggerAPI, from, to)
	if err != nil {
		h.fail(w, r, "Job failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rep))
}

// POST /api/jobs/catchup
func (h *Handler) CatchUp(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required", nil)
		return
	}
	from, to, err := jobWindow(req, h.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job window", err)
		return
	}

	reps, err := h.Jobs.CatchUp(r.Context(), engine.TriggerAPI, from, to)
	if err != nil {
		h.fail(w, r, "Catch-up failed", err)
		return
	}
	dtos := make([]ReportDTO, 0, len(reps))
	for _, rep := range reps {
		dtos = append(dtos, toReportDTO(rep))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GET /api/jobs/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	runs, err := h.Jobs.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// jobWindow resolves {date} or {from, to}; both fall back to def.
func jobWindow(req JobRequest, def generic.TimePoint) (generic.TimePoint, generic.TimePoint, error) {
	from, to := def, def
	var err error
	if req.Date != "" {
		if from, err = generic.ParseDate(req.Date); err != nil {
			return from, to, err
		}
		to = from
	}
	if req.From != "" {
		if from, err = generic.ParseDate(req.From); err != nil {
			return from, to, err
		}
		to = from
	}
	if req.To != "" {
		if to, err = generic.ParseDate(req.To); err != nil {
			return from, to, err
		}
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("%w: %s..%s", generic.ErrInvalidPeriod, from, to)
	}
	return from, to, nil
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	created, err := h.Requests.Submit(r.Context(), engine.SubmitInput{
		EmployeeID:  generic.EntityID(req.EmployeeID),
		LeaveTypeID: generic.ResourceID(req.LeaveTypeID),
		Start:       req.Start,
		End:         req.End,
		Reason:      req.Reason,
	})
	if err != nil {
		h.fail(w, r, "Failed to submit request", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(*created))
}

// GET /api/requests/pending?manager=
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	manager := r.URL.Query().Get("manager")
	if manager == "" {
		writeError(w, http.StatusBadRequest, "manager is required", nil)
		return
	}
	pending, err := h.Requests.Pending(r.Context(), generic.EntityID(manager))
	if err != nil {
		h.fail(w, r, "Failed to list requests", err)
		return
	}
	dtos := make([]RequestDTO, 0, len(pending))
	for _, p := range pending {
		dtos = append(dtos, toRequestDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Requests.Approve)
}

// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Requests.Reject)
}

type decisionFunc func(ctx context.Context, id string, actor generic.EntityID, comment string) (*leave.Request, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn decisionFunc) {
	var req DecisionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	decided, err := fn(r.Context(), chi.URLParam(r, "id"), generic.EntityID(req.ActorID), req.Comment)
	if err != nil {
		h.fail(w, r, "Failed to decide request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(*decided))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) leaveTypeNames(ctx context.Context) (map[generic.ResourceID]string, error) {
	types, err := h.Repo.ListLeaveTypes(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[generic.ResourceID]string, len(types))
	for _, lt := range types {
		names[lt.ID] = lt.Name
	}
	return names, nil
}

// decodeJSON decodes and validates the body. It writes the 400 itself and
// reports whether the handler should continue.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decode(w, r, dst, false)
}

// decodeOptionalJSON accepts an empty body.
func (h *Handler) decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	return h.decode(w, r, dst, true)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsConfigError(err):
		return http.StatusUnprocessableEntity
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, leave.ErrNotManager):
		return http.StatusForbidden
	case errors.Is(err, leave.ErrInvalidTransition),
		errors.Is(err, generic.ErrConflict),
		errors.Is(err, generic.ErrAlreadyProcessed):
		return http.StatusConflict
	case generic.IsClientError(err),
		errors.Is(err, leave.ErrInvalidRequest),
		errors.Is(err, leave.ErrInvalidPolicy),
		errors.Is(err, leave.ErrMalformedSchedule),
		errors.Is(err, leave.ErrMissingHireDate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged with the
// request-scoped logger.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(message)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func optionalDate(s string) (*generic.TimePoint, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}
