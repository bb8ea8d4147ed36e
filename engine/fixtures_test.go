package engine_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/generic/store"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// FAKE ROSTER
// =============================================================================

type fakeRoster struct {
	mu         sync.Mutex
	leaveTypes map[generic.ResourceID]leave.LeaveType
	employees  map[generic.EntityID]leave.Employee
	policies   map[generic.PolicyID]leave.Policy
	schedules  map[string]leave.WorkSchedule
	holidays   []generic.Holiday
	requests   map[string]leave.Request
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		leaveTypes: make(map[generic.ResourceID]leave.LeaveType),
		employees:  make(map[generic.EntityID]leave.Employee),
		policies:   make(map[generic.PolicyID]leave.Policy),
		schedules:  make(map[string]leave.WorkSchedule),
		requests:   make(map[string]leave.Request),
	}
}

func (f *fakeRoster) FindLeaveTypeByName(_ context.Context, name string) (*leave.LeaveType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lt := range f.leaveTypes {
		if lt.Name == name {
			return &lt, nil
		}
	}
	return nil, generic.ErrResourceNotFound
}

func (f *fakeRoster) GetLeaveType(_ context.Context, id generic.ResourceID) (*leave.LeaveType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lt, ok := f.leaveTypes[id]
	if !ok {
		return nil, generic.ErrResourceNotFound
	}
	return &lt, nil
}

func (f *fakeRoster) ListActiveEmployees(_ context.Context) ([]leave.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []leave.Employee
	for _, e := range f.employees {
		if e.Active() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRoster) GetEmployee(_ context.Context, id generic.EntityID) (*leave.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.employees[id]
	if !ok {
		return nil, generic.ErrEntityNotFound
	}
	return &e, nil
}

func (f *fakeRoster) GetPolicy(_ context.Context, id generic.PolicyID) (*leave.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[id]
	if !ok {
		return nil, generic.ErrPolicyNotFound
	}
	return &p, nil
}

func (f *fakeRoster) GetSchedule(_ context.Context, id string) (*leave.WorkSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return nil, generic.ErrScheduleNotFound
	}
	return &s, nil
}

func (f *fakeRoster) ListHolidays(_ context.Context, from, to generic.TimePoint) ([]generic.Holiday, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []generic.Holiday
	for _, h := range f.holidays {
		if !h.Date.Before(from) && !h.Date.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRoster) SaveRequest(_ context.Context, r leave.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[r.ID] = r
	return nil
}

func (f *fakeRoster) DecideRequest(_ context.Context, r leave.Request, from leave.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.requests[r.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("%w: request %s is no longer %s", leave.ErrInvalidTransition, r.ID, from)
	}
	stored.Status = r.Status
	stored.DecidedBy = r.DecidedBy
	stored.DecidedAt = r.DecidedAt
	stored.Comment = r.Comment
	f.requests[r.ID] = stored
	return nil
}

func (f *fakeRoster) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, generic.ErrRequestNotFound
	}
	return &r, nil
}

func (f *fakeRoster) ListRequests(_ context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []leave.Request
	for _, r := range f.requests {
		if filter.EmployeeID != "" && r.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.ManagerID != "" && f.employees[r.EmployeeID].ManagerID != filter.ManagerID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// FIXTURE
// =============================================================================

const annualID generic.ResourceID = "annual"

type fixture struct {
	roster *fakeRoster
	store  *store.Memory
	ledger *generic.DefaultLedger
	cfg    engine.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	ledger := generic.NewLedger(mem)
	ledger.Now = func() time.Time { return time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC) }

	f := &fixture{roster: newFakeRoster(), store: mem, ledger: ledger, cfg: engine.DefaultConfig()}
	f.roster.leaveTypes[annualID] = leave.LeaveType{ID: annualID, Name: leave.AnnualLeaveName}
	return f
}

func (f *fixture) engine() *engine.Engine {
	return engine.New(f.roster, f.ledger, f.cfg)
}

func (f *fixture) addPolicy(p leave.Policy) {
	f.roster.policies[p.ID] = p
}

func (f *fixture) addSchedule(s *leave.WorkSchedule) {
	f.roster.schedules[s.ID] = *s
}

func (f *fixture) addEmployee(id generic.EntityID, hire string, policy generic.PolicyID, schedule string) {
	e := leave.Employee{
		ID:         id,
		Name:       string(id),
		Status:     leave.StatusActive,
		PolicyID:   policy,
		ScheduleID: schedule,
		ManagerID:  "manager",
	}
	if hire != "" {
		e.HireDate = d(hire)
	}
	f.roster.employees[id] = e
}

func (f *fixture) balance(t *testing.T, id generic.EntityID, resource generic.ResourceID) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), id, resource)
	require.NoError(t, err)
	return b.Value
}

func (f *fixture) adjustments(t *testing.T, id generic.EntityID) []generic.Adjustment {
	t.Helper()
	adjs, err := f.ledger.Adjustments(context.Background(), generic.AdjustmentFilter{EntityID: id})
	require.NoError(t, err)
	return adjs
}

// seedBalance sets a starting balance through a manual adjustment.
func (f *fixture) seedBalance(t *testing.T, id generic.EntityID, resource generic.ResourceID, hours int64) {
	t.Helper()
	_, err := f.ledger.Apply(context.Background(), generic.Mutation{
		EntityID:    id,
		ResourceID:  resource,
		Kind:        generic.KindManual,
		Reason:      "opening balance",
		EffectiveAt: d("2023-12-01"),
		Rule:        generic.Increment(generic.Hours(decimal.NewFromInt(hours))),
	})
	require.NoError(t, err)
}

// =============================================================================
// BUILDERS
// =============================================================================

func d(s string) generic.TimePoint { return generic.MustParseDate(s) }

func h(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func yearlyDaysPolicy(id generic.PolicyID, days int64) leave.Policy {
	return leave.Policy{
		ID:                  id,
		Name:                "Yearly " + string(id),
		Frequency:           generic.FreqYearly,
		AccrualAmount:       h(days),
		AccrualUnit:         generic.UnitDays,
		HolidayCompensation: true,
	}.WithDefaults()
}

// weekdays is Monday-Friday 09:00-18:00: a 9h shift, 8h after the meal break.
func weekdays(id string) *leave.WorkSchedule {
	s := &leave.WorkSchedule{ID: id, Name: "Office"}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		s.Rules = append(s.Rules, leave.ScheduleRule{
			Weekday: wd,
			Start:   leave.ClockTime{Hour: 9},
			End:     leave.ClockTime{Hour: 18},
		})
	}
	return s
}
