package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/app"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/holidays"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// FIXTURE
// =============================================================================

// sharedStore keeps one in-memory database alive across commands, each of
// which closes the app it opened.
type sharedStore struct {
	*sqlite.Store
}

func (sharedStore) Close() error { return nil }

type fakeFeed struct {
	entries []holidays.Entry
}

func (f fakeFeed) Fetch(context.Context) ([]holidays.Entry, []holidays.Skipped, error) {
	return f.entries, nil, nil
}

type testEnv struct {
	t     *testing.T
	store *sqlite.Store
	cfg   *config.Config
	feed  fakeFeed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &testEnv{
		t:     t,
		store: store,
		cfg: &config.Config{
			DBDriver:                "sqlite",
			AnnualLeaveType:         leave.AnnualLeaveName,
			DefaultDailyHours:       8,
			MealBreakThresholdHours: 5,
			MealBreakDeductionHours: 1,
			RunConcurrency:          1,
			Timezone:                "UTC",
		},
		feed: fakeFeed{entries: []holidays.Entry{
			{Date: generic.MustParseDate("2024-01-01"), Name: "The first day of January"},
			{Date: generic.MustParseDate("2024-02-10"), Name: "Lunar New Year's Day"},
		}},
	}
}

func (e *testEnv) open(context.Context, *RootOptions) (*app.App, error) {
	return app.Wire(e.cfg, sharedStore{e.store}, nil, e.feed, zerolog.Nop()), nil
}

// run executes leavectl with args and returns what it wrote to stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Open: e.open})
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func (e *testEnv) seed() {
	e.t.Helper()
	_, err := e.run("seed", "testdata/seed.yaml")
	require.NoError(e.t, err)
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

// =============================================================================
// TESTS
// =============================================================================

func TestSeedCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("seed", "testdata/seed.yaml")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "seed", []byte(out))

	emp, err := env.store.GetEmployee(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, generic.PolicyID("standard"), emp.PolicyID)
}

func TestSeedCommand_InvalidFile(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("seed", "testdata/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [")
}

func TestAccrueCommand(t *testing.T) {
	// GIVEN: Alice on a 12 day yearly policy with an 8h working day
	// WHEN: Running accrue for 2024-01-01 twice
	// THEN: The first run grants 96h; the second finds nothing new to do

	env := newTestEnv(t)
	env.seed()

	out, err := env.run("accrue", "--date", "2024-01-01")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "accrue", []byte(out))

	out, err = env.run("accrue", "--date", "2024-01-01", "--format", "json")
	require.NoError(t, err)
	rep := decodeData[ReportView](t, out)
	assert.Equal(t, "accrual", rep.Process)
	assert.Equal(t, 0, rep.Processed)
	assert.Equal(t, 1, rep.AlreadyDone)
	assert.Equal(t, "0.00", rep.Hours)

	out, err = env.run("balances", "alice")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "balances", []byte(out))
}

func TestAccrueCommand_MissingLeaveType(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.cfg.AnnualLeaveType = "Sabbatical"

	out, err := env.run("accrue", "--date", "2024-01-01", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)

	runs, err := env.store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, engine.RunFailed, runs[0].Status)
	assert.Equal(t, engine.TriggerCLI, runs[0].Trigger)
}

func TestCompensateCommand_Year(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	out, err := env.run("compensate", "--year", "2024", "--format", "json")
	require.NoError(t, err)
	rep := decodeData[ReportView](t, out)
	assert.Equal(t, "compensation", rep.Process)
	assert.Equal(t, "2024-01-01", rep.From)
	assert.Equal(t, "2024-12-31", rep.To)

	_, err = env.run("compensate", "--year", "2024", "--from", "2024-01-01")
	assert.Error(t, err)

	_, err = env.run("compensate", "--to", "2024-01-01")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCatchUpCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	out, err := env.run("catchup", "--from", "2024-01-01", "--to", "2024-01-03", "--format", "json")
	require.NoError(t, err)
	reps := decodeData[[]ReportView](t, out)
	require.Len(t, reps, 3)
	assert.Equal(t, "settlement", reps[0].Process)
	assert.Equal(t, "accrual", reps[1].Process)
	assert.Equal(t, "96.00", reps[1].Hours)
	assert.Equal(t, "compensation", reps[2].Process)

	out, err = env.run("runs", "--format", "json")
	require.NoError(t, err)
	runs := decodeData[[]RunView](t, out)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.Equal(t, engine.TriggerCLI, r.Trigger)
		assert.Equal(t, "2024-01-01..2024-01-03", r.Window)
	}

	_, err = env.run("catchup", "--from", "2024-01-03", "--to", "2024-01-01")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("catchup", "--from", "01/01/2024", "--to", "2024-01-03")
	require.Error(t, err)
}

func TestImportHolidaysCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	out, err := env.run("import-holidays")
	require.NoError(t, err)
	assert.Equal(t, "holidays: 1 created, 1 updated, 0 skipped\n", out)

	hs, err := env.store.ListHolidays(context.Background(),
		generic.MustParseDate("2024-01-01"), generic.MustParseDate("2024-12-31"))
	require.NoError(t, err)
	assert.Len(t, hs, 2)
}

func TestBalancesCommand_UnknownEmployee(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("balances", "nobody")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "unknown employee")
}

func TestMigrateCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("migrate")
	require.NoError(t, err)
	assert.Equal(t, "✓ sqlite schema is up to date\n", out)
}
