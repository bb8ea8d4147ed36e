package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func hours(v int64) generic.Amount { return generic.Hours(decimal.NewFromInt(v)) }

// =============================================================================
// LEDGER
// =============================================================================

func TestStore_LedgerApplyPersistsBalanceAdjustmentAndMarker(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: Applying an accrual with a marker
	// THEN: Balance, adjustment and marker are all stored; a second apply
	//       with the same marker is refused

	s := newStore(t)
	ledger := generic.NewLedger(s)
	ctx := context.Background()

	m := generic.Mutation{
		EntityID:    "alice",
		ResourceID:  "annual",
		PolicyID:    "yearly",
		Kind:        generic.KindAccrual,
		Reason:      "Yearly accrual",
		EffectiveAt: generic.MustParseDate("2024-01-01"),
		Rule:        generic.Increment(hours(96)),
		Marker:      &generic.Marker{Key: "accrual:alice:yearly:2024", PolicyID: "yearly", Process: "accrual", Period: "2024"},
	}
	adj, err := ledger.Apply(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "accrual:alice:yearly:2024", adj.MarkerKey)

	bal, err := ledger.Balance(ctx, "alice", "annual")
	require.NoError(t, err)
	assert.True(t, bal.Equal(hours(96)))

	done, err := ledger.Processed(ctx, "accrual:alice:yearly:2024")
	require.NoError(t, err)
	assert.True(t, done)

	_, err = ledger.Apply(ctx, m)
	assert.ErrorIs(t, err, generic.ErrAlreadyProcessed)

	adjs, err := ledger.Adjustments(ctx, generic.AdjustmentFilter{EntityID: "alice"})
	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, generic.KindAccrual, adjs[0].Kind)
	assert.True(t, adjs[0].Delta.Equal(hours(96)))
	assert.True(t, adjs[0].BalanceAfter.Equal(hours(96)))
	assert.Equal(t, "2024-01-01", adjs[0].EffectiveAt.String())
	assert.Equal(t, "system", adjs[0].CreatedBy)
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := generic.BalanceKey{EntityID: "alice", ResourceID: "annual"}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx generic.LedgerTx) error {
		require.NoError(t, tx.PutBalance(ctx, key, hours(10), time.Now()))

		// Reads inside the transaction see its own writes
		got, found, err := tx.GetBalance(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, got.Equal(hours(10)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, found, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_PutMarkerTwiceIsAlreadyProcessed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	marker := generic.Marker{Key: "holiday:alice:comp:2024-01-06", EntityID: "alice", Process: "compensation"}

	require.NoError(t, s.WithTx(ctx, func(tx generic.LedgerTx) error { return tx.PutMarker(ctx, marker) }))
	err := s.WithTx(ctx, func(tx generic.LedgerTx) error { return tx.PutMarker(ctx, marker) })
	assert.ErrorIs(t, err, generic.ErrAlreadyProcessed)
}

func TestStore_ListAdjustmentsFiltersAndOrders(t *testing.T) {
	s := newStore(t)
	ledger := generic.NewLedger(s)
	ctx := context.Background()

	apply := func(entity generic.EntityID, kind generic.AdjustmentKind, date string, delta int64) {
		t.Helper()
		_, err := ledger.Apply(ctx, generic.Mutation{
			EntityID:    entity,
			ResourceID:  "annual",
			Kind:        kind,
			EffectiveAt: generic.MustParseDate(date),
			Rule:        generic.Increment(hours(delta)),
		})
		require.NoError(t, err)
	}
	apply("alice", generic.KindManual, "2024-03-01", 5)
	apply("alice", generic.KindAccrual, "2024-01-01", 96)
	apply("alice", generic.KindConsumption, "2024-02-01", -8)
	apply("bob", generic.KindAccrual, "2024-01-01", 96)

	all, err := ledger.Adjustments(ctx, generic.AdjustmentFilter{EntityID: "alice"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-01-01", all[0].EffectiveAt.String())
	assert.Equal(t, "2024-02-01", all[1].EffectiveAt.String())
	assert.Equal(t, "2024-03-01", all[2].EffectiveAt.String())

	from := generic.MustParseDate("2024-02-01")
	ranged, err := ledger.Adjustments(ctx, generic.AdjustmentFilter{
		EntityID: "alice",
		Kinds:    []generic.AdjustmentKind{generic.KindConsumption, generic.KindManual},
		From:     &from,
		Limit:    1,
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, generic.KindConsumption, ranged[0].Kind)

	balances, err := ledger.Balances(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.True(t, balances[0].Amount.Equal(hours(93)))
}

// =============================================================================
// CATALOG
// =============================================================================

func TestStore_LeaveTypeNamesAreUnique(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveLeaveType(ctx, leave.LeaveType{ID: "annual", Name: leave.AnnualLeaveName}))
	err := s.SaveLeaveType(ctx, leave.LeaveType{ID: "other", Name: leave.AnnualLeaveName})
	assert.ErrorIs(t, err, generic.ErrConflict)

	lt, err := s.FindLeaveTypeByName(ctx, leave.AnnualLeaveName)
	require.NoError(t, err)
	assert.Equal(t, generic.ResourceID("annual"), lt.ID)

	_, err = s.GetLeaveType(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrResourceNotFound)
}

func TestStore_SavePolicyReplacesRules(t *testing.T) {
	// GIVEN: A tenure policy with two rules and no rule IDs
	// WHEN: Saving it, then saving it again with one rule
	// THEN: Rules are numbered 1, 2 and the second save replaces them

	s := newStore(t)
	ctx := context.Background()

	p := leave.StandardAnnualLeave("standard", 12, 5)
	p.Rules = []leave.Rule{
		{YearsOfService: 3, Type: leave.RuleAdd, Amount: decimal.NewFromInt(2)},
		{YearsOfService: 3, Type: leave.RuleSet, Amount: decimal.NewFromInt(20)},
	}
	require.NoError(t, s.SavePolicy(ctx, p))

	got, err := s.GetPolicy(ctx, "standard")
	require.NoError(t, err)
	require.Len(t, got.Rules, 2)
	assert.Equal(t, int64(1), got.Rules[0].ID)
	assert.Equal(t, int64(2), got.Rules[1].ID)
	assert.Equal(t, leave.RuleSet, got.Rules[1].Type)
	assert.True(t, got.MaxCarryOver.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, time.January, got.FiscalYearStartMonth)
	assert.Equal(t, leave.AnchorCalendar, got.YearlyAnchor)

	p.Rules = p.Rules[:1]
	require.NoError(t, s.SavePolicy(ctx, p))
	policies, err := s.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Len(t, policies[0].Rules, 1)

	_, err = s.GetPolicy(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrPolicyNotFound)
}

func TestStore_SavePolicyRejectsInvalid(t *testing.T) {
	s := newStore(t)
	p := leave.StandardAnnualLeave("bad", 12, 0)
	p.Frequency = "HOURLY"
	assert.ErrorIs(t, s.SavePolicy(context.Background(), p), leave.ErrInvalidPolicy)
}

func TestStore_ScheduleRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ws := leave.WorkSchedule{ID: "office", Name: "Office", Rules: []leave.ScheduleRule{
		{Weekday: time.Friday, Start: leave.ClockTime{Hour: 9}, End: leave.ClockTime{Hour: 13, Minute: 30}},
		{Weekday: time.Monday, Start: leave.ClockTime{Hour: 9}, End: leave.ClockTime{Hour: 18}},
	}}
	require.NoError(t, s.SaveSchedule(ctx, ws))

	got, err := s.GetSchedule(ctx, "office")
	require.NoError(t, err)
	require.Len(t, got.Rules, 2)
	assert.Equal(t, time.Monday, got.Rules[0].Weekday)
	assert.Equal(t, leave.ClockTime{Hour: 13, Minute: 30}, got.Rules[1].End)

	_, err = s.GetSchedule(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrScheduleNotFound)
}

// =============================================================================
// ROSTER
// =============================================================================

func TestStore_EmployeesActiveOrderedByID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	months := 6

	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "zoe", Name: "Zoe", PolicyID: "standard"}))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{
		ID:                              "amy",
		Name:                            "Amy",
		HireDate:                        generic.MustParseDate("2021-06-15"),
		ManagerID:                       "zoe",
		CompensationEligibleAfterMonths: &months,
	}))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "max", Name: "Max", Status: leave.StatusInactive}))

	active, err := s.ListActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, generic.EntityID("amy"), active[0].ID)
	assert.Equal(t, generic.EntityID("zoe"), active[1].ID)

	amy, err := s.GetEmployee(ctx, "amy")
	require.NoError(t, err)
	assert.Equal(t, "2021-06-15", amy.HireDate.String())
	assert.Equal(t, generic.EntityID("zoe"), amy.ManagerID)
	require.NotNil(t, amy.CompensationEligibleAfterMonths)
	assert.Equal(t, 6, *amy.CompensationEligibleAfterMonths)
	assert.False(t, amy.HasPolicy())

	zoe, err := s.GetEmployee(ctx, "zoe")
	require.NoError(t, err)
	assert.True(t, zoe.HireDate.IsZero())
	assert.Nil(t, zoe.CompensationEligibleAfterMonths)

	_, err = s.GetEmployee(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrEntityNotFound)
}

func TestStore_UpsertHolidayIsUniqueByDate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	date := generic.MustParseDate("2024-01-01")

	created, err := s.UpsertHoliday(ctx, generic.Holiday{Date: date, Name: "New Year"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.UpsertHoliday(ctx, generic.Holiday{Date: date, Name: "New Year's Day"})
	require.NoError(t, err)
	assert.False(t, created)

	list, err := s.ListHolidays(ctx, generic.MustParseDate("2023-12-01"), generic.MustParseDate("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New Year's Day", list[0].Name)
	assert.NotEmpty(t, list[0].ID)

	list, err = s.ListHolidays(ctx, generic.MustParseDate("2024-01-02"), generic.MustParseDate("2024-12-31"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

// =============================================================================
// REQUESTS AND RUNS
// =============================================================================

func TestStore_RequestsByManager(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "amy", Name: "Amy", ManagerID: "boss"}))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "ben", Name: "Ben", ManagerID: "other"}))

	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	for _, r := range []leave.Request{
		{ID: "r1", EmployeeID: "amy", LeaveTypeID: "annual", Start: start, End: start.Add(9 * time.Hour),
			Hours: decimal.NewFromInt(9), Status: leave.RequestPending, CreatedAt: start},
		{ID: "r2", EmployeeID: "ben", LeaveTypeID: "annual", Start: start, End: start.Add(3 * time.Hour),
			Hours: decimal.NewFromInt(3), Status: leave.RequestPending, CreatedAt: start},
	} {
		require.NoError(t, s.SaveRequest(ctx, r))
	}

	pending, err := s.ListRequests(ctx, leave.RequestFilter{ManagerID: "boss", Status: leave.RequestPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "r1", pending[0].ID)
	assert.True(t, pending[0].Hours.Equal(decimal.NewFromInt(9)))
	assert.True(t, pending[0].Start.Equal(start))

	r := pending[0]
	amy, err := s.GetEmployee(ctx, "amy")
	require.NoError(t, err)
	require.NoError(t, r.Approve("boss", *amy, start.Add(time.Hour), "enjoy"))
	require.NoError(t, s.SaveRequest(ctx, r))

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.RequestApproved, got.Status)
	assert.Equal(t, generic.EntityID("boss"), got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
	assert.Equal(t, "enjoy", got.Comment)

	_, err = s.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)
}

func TestStore_DecideRequestOnlyFromExpectedStatus(t *testing.T) {
	// GIVEN: A pending request
	// WHEN: Rejecting it, then approving it as if it were still pending
	// THEN: The approval is refused and the rejection stays stored

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{ID: "amy", Name: "Amy", ManagerID: "boss"}))
	amy, err := s.GetEmployee(ctx, "amy")
	require.NoError(t, err)

	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	pending := leave.Request{ID: "r1", EmployeeID: "amy", LeaveTypeID: "annual", Start: start,
		End: start.Add(9 * time.Hour), Hours: decimal.NewFromInt(9), Status: leave.RequestPending, CreatedAt: start}
	require.NoError(t, s.SaveRequest(ctx, pending))

	rejected := pending
	require.NoError(t, rejected.Reject("boss", *amy, start, "no"))
	require.NoError(t, s.DecideRequest(ctx, rejected, leave.RequestPending))

	approved := pending
	require.NoError(t, approved.Approve("boss", *amy, start, "yes"))
	err = s.DecideRequest(ctx, approved, leave.RequestPending)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.RequestRejected, got.Status)
	assert.Equal(t, "no", got.Comment)

	err = s.DecideRequest(ctx, leave.Request{ID: "missing", Status: leave.RequestRejected}, leave.RequestPending)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestStore_RunsMostRecentFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	day := generic.MustParseDate("2024-01-01")
	start := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)

	older := engine.NewRunRecord(engine.ProcessAccrual, "scheduler", day, day,
		&engine.Report{StartedAt: start, FinishedAt: start.Add(time.Second), Processed: 3, Hours: decimal.NewFromInt(288)}, nil)
	newer := engine.NewRunRecord(engine.ProcessSettlement, "cli", day, day,
		&engine.Report{StartedAt: start.Add(time.Minute), FinishedAt: start.Add(2 * time.Minute), Deferred: 1}, nil)
	require.NoError(t, s.SaveRun(ctx, older))
	require.NoError(t, s.SaveRun(ctx, newer))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, engine.RunIncomplete, runs[0].Status)
	assert.Equal(t, engine.ProcessAccrual, runs[1].Process)
	assert.Equal(t, 3, runs[1].Processed)
	assert.True(t, runs[1].Hours.Equal(decimal.NewFromInt(288)))
	assert.Equal(t, "2024-01-01", runs[1].From.String())
}

// =============================================================================
// END TO END
// =============================================================================

func TestStore_EngineAccrualIsIdempotentAcrossReopen(t *testing.T) {
	// GIVEN: A database file with a yearly 12-day policy and one employee
	// WHEN: Accruing on 2024-01-01, reopening the file, and accruing again
	// THEN: 96h once; the second run reports the employee as already done

	path := filepath.Join(t.TempDir(), "leave.db")
	ctx := context.Background()
	day := generic.MustParseDate("2024-01-01")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveLeaveType(ctx, leave.LeaveType{ID: "annual", Name: leave.AnnualLeaveName}))
	require.NoError(t, s.SavePolicy(ctx, leave.StandardAnnualLeave("standard", 12, 5)))
	require.NoError(t, s.SaveEmployee(ctx, leave.Employee{
		ID: "alice", Name: "Alice", HireDate: generic.MustParseDate("2020-01-01"), PolicyID: "standard",
	}))

	rep, err := engine.New(s, generic.NewLedger(s), engine.DefaultConfig()).Accrue(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	rep, err = engine.New(s, generic.NewLedger(s), engine.DefaultConfig()).Accrue(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.AlreadyDone)

	bal, err := generic.NewLedger(s).Balance(ctx, "alice", "annual")
	require.NoError(t, err)
	assert.True(t, bal.Equal(hours(96)))
}
