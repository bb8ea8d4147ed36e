package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// BATCH COMMANDS
// =============================================================================

// window maps today, in the configured timezone, onto a run's dates.
type window func(today generic.TimePoint) (from, to generic.TimePoint, err error)

// NewAccrueCommand creates the accrue command.
func NewAccrueCommand(rootOpts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "accrue",
		Short: "Run leave accrual for one day",
		Long: `Apply the accrual due on a date to every active employee with a policy.

Re-running the same date, or another date in the same accrual period,
changes nothing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, rootOpts, engine.ProcessAccrual, singleDay(date))
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "accrual date YYYY-MM-DD (default today)")
	return cmd
}

// NewSettleCommand creates the settle command.
func NewSettleCommand(rootOpts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Run year-end settlement for one day",
		Long: `Close the fiscal year for every employee whose policy's year starts on
the date: carry over up to the policy maximum and forfeit the rest.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, rootOpts, engine.ProcessSettlement, singleDay(date))
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "first day of the new fiscal year YYYY-MM-DD (default today)")
	return cmd
}

// NewCompensateCommand creates the compensate command.
func NewCompensateCommand(rootOpts *RootOptions) *cobra.Command {
	var from, to string
	var year int
	cmd := &cobra.Command{
		Use:   "compensate",
		Short: "Grant compensation for holidays on rest days",
		Long: `Grant compensatory hours for every public holiday in the window that
falls on an employee's rest day. Without flags the window is yesterday.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, rootOpts, engine.ProcessCompensation, compensationWindow(from, to, year))
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first holiday date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last holiday date YYYY-MM-DD (default --from)")
	cmd.Flags().IntVar(&year, "year", 0, "compensate every holiday of a calendar year")
	cmd.MarkFlagsMutuallyExclusive("year", "from")
	cmd.MarkFlagsMutuallyExclusive("year", "to")
	return cmd
}

// NewCatchUpCommand creates the catchup command.
func NewCatchUpCommand(rootOpts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "catchup",
		Short: "Replay every process over a range of days",
		Long: `Replay settlement, accrual and compensation for each day in [from, to],
in that order. Days already handled are skipped, so the range may overlap
scheduled runs.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatchUp(cmd, rootOpts, from, to)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runJob(cmd *cobra.Command, opts *RootOptions, process engine.Process, win window) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := opts.open(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to open application", err)
	}
	defer a.Close()

	from, to, err := win(generic.TodayIn(a.Config.Location()))
	if err != nil {
		return f.Fail(ExitCommandError, "invalid dates", err)
	}
	f.VerboseLog("running %s for %s..%s", process, from, to)

	rep, err := a.Jobs.Run(ctx, process, engine.TriggerCLI, from, to)
	if err != nil {
		return f.Fail(ExitCommandError, fmt.Sprintf("%s run failed", process), err)
	}
	err = f.Success(newReportView(rep), func(w io.Writer) {
		fmt.Fprint(w, rep.Summary())
	})
	if err != nil {
		return err
	}
	return reportExit(rep)
}

func runCatchUp(cmd *cobra.Command, opts *RootOptions, fromArg, toArg string) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	from, err := generic.ParseDate(fromArg)
	if err != nil {
		return f.Fail(ExitCommandError, "invalid --from", err)
	}
	to, err := generic.ParseDate(toArg)
	if err != nil {
		return f.Fail(ExitCommandError, "invalid --to", err)
	}

	a, err := opts.open(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to open application", err)
	}
	defer a.Close()

	reps, err := a.Jobs.CatchUp(ctx, engine.TriggerCLI, from, to)
	if err != nil {
		return f.Fail(ExitCommandError, "catch-up failed", err)
	}

	views := make([]ReportView, 0, len(reps))
	for _, r := range reps {
		views = append(views, newReportView(r))
	}
	err = f.Success(views, func(w io.Writer) {
		for _, r := range reps {
			fmt.Fprint(w, r.Summary())
		}
	})
	if err != nil {
		return err
	}
	for _, r := range reps {
		if err := reportExit(r); err != nil {
			return err
		}
	}
	return nil
}

// reportExit turns a finished run with failures or deferred employees into
// ExitFailure. The report has already been printed.
func reportExit(rep *engine.Report) error {
	switch {
	case rep.Failed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d employee(s) failed", rep.Process, rep.Failed))
	case rep.Incomplete():
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d employee(s) deferred, run again to resume", rep.Process, rep.Deferred))
	}
	return nil
}

// =============================================================================
// DATE WINDOWS
// =============================================================================

func singleDay(date string) window {
	return func(today generic.TimePoint) (generic.TimePoint, generic.TimePoint, error) {
		d, err := optionalDate(date, today)
		return d, d, err
	}
}

func compensationWindow(fromArg, toArg string, year int) window {
	return func(today generic.TimePoint) (generic.TimePoint, generic.TimePoint, error) {
		if year != 0 {
			return generic.StartOfYear(year), generic.EndOfYear(year), nil
		}
		if fromArg == "" && toArg != "" {
			return generic.TimePoint{}, generic.TimePoint{}, errors.New("--to requires --from")
		}
		from, err := optionalDate(fromArg, today.AddDays(-1))
		if err != nil {
			return from, from, err
		}
		to, err := optionalDate(toArg, from)
		return from, to, err
	}
}

func optionalDate(s string, def generic.TimePoint) (generic.TimePoint, error) {
	if s == "" {
		return def, nil
	}
	return generic.ParseDate(s)
}
