/*
handlers_test.go - Tests for API handlers

Tests for:
- Batch jobs through HTTP and the run history they leave
- Balances, the adjustment trail and manual corrections
- Policies and holidays
- The leave request workflow and its error statuses
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/holidays"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// FIXTURE
// =============================================================================

const annualID generic.ResourceID = "annual"

type testServer struct {
	t      *testing.T
	store  *sqlite.Store
	router http.Handler
	h      *Handler
}

// newTestServer seeds a manager and an employee on a Mon-Fri 09:00-18:00
// schedule under a 12 day yearly policy.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveLeaveType(ctx, leave.LeaveType{ID: annualID, Name: leave.AnnualLeaveName}))
	require.NoError(t, store.SavePolicy(ctx, leave.StandardAnnualLeave("standard", 12, 5)))

	office := leave.WorkSchedule{ID: "office", Name: "Office"}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		office.Rules = append(office.Rules, leave.ScheduleRule{
			Weekday: wd, Start: leave.ClockTime{Hour: 9}, End: leave.ClockTime{Hour: 18},
		})
	}
	require.NoError(t, store.SaveSchedule(ctx, office))

	for _, e := range []leave.Employee{
		{ID: "mgr", Name: "Morgan", Status: leave.StatusActive},
		{ID: "alice", Name: "Alice", Status: leave.StatusActive, HireDate: generic.MustParseDate("2023-01-01"),
			PolicyID: "standard", ScheduleID: "office", ManagerID: "mgr"},
	} {
		require.NoError(t, store.SaveEmployee(ctx, e))
	}

	ledger := generic.NewLedger(store)
	eng := engine.New(store, ledger, engine.DefaultConfig())
	jobs := engine.NewJobs(eng, store, zerolog.Nop())
	requests := engine.NewRequests(store, ledger, nil)

	h := NewHandler(store, ledger, jobs, requests, nil)
	h.Today = func() generic.TimePoint { return generic.MustParseDate("2024-01-01") }

	return &testServer{t: t, store: store, h: h, router: NewRouter(h, zerolog.Nop(), nil)}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// JOBS AND BALANCES
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRunJob_AccrualUpdatesBalanceAndRecordsRun(t *testing.T) {
	// GIVEN: Alice on a 12 day policy with an 8h working day
	// WHEN: Triggering accrual for 2024-01-01 over HTTP
	// THEN: Balance is 96h, one accrual adjustment, one completed api run

	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/jobs/accrual", JobRequest{Date: "2024-01-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decodeBody[ReportDTO](t, rec)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, "96.00", rep.Hours)

	rec = s.do(http.MethodGet, "/api/employees/alice/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balances := decodeBody[[]BalanceDTO](t, rec)
	require.Len(t, balances, 1)
	assert.Equal(t, "96.00", balances[0].Hours)
	assert.Equal(t, leave.AnnualLeaveName, balances[0].LeaveType)

	rec = s.do(http.MethodGet, "/api/employees/alice/adjustments?kind=accrual", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	adjs := decodeBody[[]AdjustmentDTO](t, rec)
	require.Len(t, adjs, 1)
	assert.Equal(t, "accrual", adjs[0].Kind)

	rec = s.do(http.MethodGet, "/api/jobs/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decodeBody[[]RunDTO](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, engine.TriggerAPI, runs[0].Trigger)
}

func TestRunJob_DefaultsToToday(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/jobs/accrual", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-01-01", decodeBody[ReportDTO](t, rec).From)

	rec = s.do(http.MethodPost, "/api/jobs/compensation", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2023-12-31", decodeBody[ReportDTO](t, rec).From)
}

func TestRunJob_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/jobs/payroll", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/jobs/compensation", JobRequest{From: "2024-02-01", To: "2024-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/jobs/accrual", map[string]string{"day": "2024-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunJob_MissingLeaveTypeIsUnprocessable(t *testing.T) {
	// GIVEN: A compensation leave type that does not exist
	// WHEN: Running compensation
	// THEN: 422 and a failed run in the history

	s := newTestServer(t)
	cfg := engine.DefaultConfig()
	cfg.CompensationLeaveType = "Compensatory"
	s.h.Jobs.Engine = engine.New(s.store, s.h.Ledger, cfg)

	rec := s.do(http.MethodPost, "/api/jobs/compensation", JobRequest{Date: "2024-01-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	runs := decodeBody[[]RunDTO](t, s.do(http.MethodGet, "/api/jobs/runs?limit=5", nil))
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Status)
}

func TestCatchUp(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/jobs/catchup", JobRequest{From: "2024-01-01", To: "2024-01-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reps := decodeBody[[]ReportDTO](t, rec)
	require.Len(t, reps, 3)
	assert.Equal(t, "accrual", reps[1].Process)
	assert.Equal(t, 1, reps[1].Processed)

	rec = s.do(http.MethodPost, "/api/jobs/catchup", JobRequest{From: "2024-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmployeeNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/employees/nobody", "/api/employees/nobody/balances", "/api/employees/nobody/adjustments"} {
		rec := s.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestCreateAdjustment(t *testing.T) {
	// GIVEN: Alice with no balance
	// WHEN: HR posts +7.5h then -2h
	// THEN: Two manual adjustments and a 5.50h balance

	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/employees/alice/adjustments", ManualAdjustmentRequest{
		LeaveTypeID: string(annualID), Hours: "7.5", Reason: "opening balance", CreatedBy: "hr",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adj := decodeBody[AdjustmentDTO](t, rec)
	assert.Equal(t, "manual", adj.Kind)
	assert.Equal(t, "7.50", adj.BalanceAfter)
	assert.Equal(t, "2024-01-01", adj.EffectiveAt)

	rec = s.do(http.MethodPost, "/api/employees/alice/adjustments", ManualAdjustmentRequest{
		LeaveTypeID: string(annualID), Hours: "-2", Reason: "correction", CreatedBy: "hr", EffectiveAt: "2024-01-05",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "5.50", decodeBody[AdjustmentDTO](t, rec).BalanceAfter)

	rec = s.do(http.MethodPost, "/api/employees/alice/adjustments", ManualAdjustmentRequest{
		LeaveTypeID: string(annualID), Hours: "lots", Reason: "x", CreatedBy: "hr",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/employees/alice/adjustments", ManualAdjustmentRequest{
		LeaveTypeID: "sick", Hours: "1", Reason: "x", CreatedBy: "hr",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// POLICIES AND HOLIDAYS
// =============================================================================

func TestPolicies(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/policies", map[string]any{
		"id": "monthly", "name": "Monthly", "frequency": "monthly",
		"accrual_amount": 8, "accrual_unit": "hours",
		"rules": []map[string]any{{"years_of_service": 3, "type": "ADD", "amount": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/policies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ids []string
	for _, p := range decodeBody[[]map[string]any](t, rec) {
		ids = append(ids, p["id"].(string))
	}
	assert.ElementsMatch(t, []string{"standard", "monthly"}, ids)

	rec = s.do(http.MethodPost, "/api/policies", map[string]any{"id": "bad", "name": "Bad", "frequency": "hourly"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHolidays_UpsertByDate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "2024-12-25", Name: "Christmas"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "2024-12-25", Name: "Christmas Day"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/holidays?year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]HolidayDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Christmas Day", list[0].Name)

	rec = s.do(http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "25/12/2024", Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeImporter struct {
	res holidays.Result
	err error
}

func (f fakeImporter) Import(context.Context) (holidays.Result, error) { return f.res, f.err }

func TestImportHolidays(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/holidays/import", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.h.Importer = fakeImporter{res: holidays.Result{Created: 2, Updated: 1,
		Skipped: []holidays.Skipped{{Summary: "Bad", Raw: "2024", Reason: "invalid date"}}}}
	rec = s.do(http.MethodPost, "/api/holidays/import", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[ImportResultDTO](t, rec)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Len(t, res.Skipped, 1)

	s.h.Importer = fakeImporter{err: errors.New("feed down")}
	rec = s.do(http.MethodPost, "/api/holidays/import", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

func TestRequests_Workflow(t *testing.T) {
	// GIVEN: Alice with a 20h balance and a pending 9h request for a Monday
	// WHEN: Someone else, then her manager, approves it
	// THEN: 403, then 200 with the balance down to 11h; approving again is 409

	s := newTestServer(t)
	s.do(http.MethodPost, "/api/employees/alice/adjustments", ManualAdjustmentRequest{
		LeaveTypeID: string(annualID), Hours: "20", Reason: "opening balance", CreatedBy: "hr",
	})

	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	rec := s.do(http.MethodPost, "/api/requests", SubmitLeaveRequest{
		EmployeeID: "alice", LeaveTypeID: string(annualID), Start: start, End: start.Add(9 * time.Hour), Reason: "dentist",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[RequestDTO](t, rec)
	assert.Equal(t, "9.00", created.Hours)
	assert.Equal(t, "pending", created.Status)

	pending := decodeBody[[]RequestDTO](t, s.do(http.MethodGet, "/api/requests/pending?manager=mgr", nil))
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)

	rec = s.do(http.MethodPost, "/api/requests/"+created.ID+"/approve", DecisionRequest{ActorID: "alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/api/requests/"+created.ID+"/approve", DecisionRequest{ActorID: "mgr", Comment: "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decodeBody[RequestDTO](t, rec).Status)

	balances := decodeBody[[]BalanceDTO](t, s.do(http.MethodGet, "/api/employees/alice/balances", nil))
	require.Len(t, balances, 1)
	assert.Equal(t, "11.00", balances[0].Hours)

	rec = s.do(http.MethodPost, "/api/requests/"+created.ID+"/reject", DecisionRequest{ActorID: "mgr"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Empty(t, decodeBody[[]RequestDTO](t, s.do(http.MethodGet, "/api/requests/pending?manager=mgr", nil)))
}

func TestRequests_Validation(t *testing.T) {
	s := newTestServer(t)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	rec := s.do(http.MethodPost, "/api/requests", SubmitLeaveRequest{
		EmployeeID: "alice", LeaveTypeID: string(annualID), Start: start, End: start.Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Saturday: no working time under the office schedule
	sat := time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC)
	rec = s.do(http.MethodPost, "/api/requests", SubmitLeaveRequest{
		EmployeeID: "alice", LeaveTypeID: string(annualID), Start: sat, End: sat.Add(8 * time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/requests/pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/requests/missing/approve", DecisionRequest{ActorID: "mgr"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{generic.ErrEntityNotFound, http.StatusNotFound},
		{leave.ErrNotManager, http.StatusForbidden},
		{leave.ErrInvalidTransition, http.StatusConflict},
		{&generic.ConfigError{Kind: "leave type", Name: "x", Err: generic.ErrResourceNotFound}, http.StatusUnprocessableEntity},
		{generic.ErrInvalidPeriod, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
