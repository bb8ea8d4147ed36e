package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DATA COMMANDS
// =============================================================================

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply pending database migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			// Opening the store migrates it.
			a, err := rootOpts.open(cmd.Context())
			if err != nil {
				return f.Fail(ExitCommandError, "migration failed", err)
			}
			defer a.Close()
			return f.Success(map[string]string{"driver": a.Config.DBDriver}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s schema is up to date\n", a.Config.DBDriver)
			})
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load leave types, schedules, policies, employees and holidays",
		Long: `Load reference data from a YAML or JSON document. Every section is
validated before anything is written; re-seeding the same file updates
records in place.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()

			doc, err := factory.LoadFile(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, "invalid seed file", err)
			}
			a, err := rootOpts.open(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to open application", err)
			}
			defer a.Close()

			res, err := factory.Seed(ctx, a.Store, doc)
			if err != nil {
				return f.Fail(ExitCommandError, "seed failed", err)
			}
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "seeded %s\n", args[0])
				fmt.Fprintf(w, "  leave types: %d\n", res.LeaveTypes)
				fmt.Fprintf(w, "  schedules:   %d\n", res.Schedules)
				fmt.Fprintf(w, "  policies:    %d\n", res.Policies)
				fmt.Fprintf(w, "  employees:   %d\n", res.Employees)
				fmt.Fprintf(w, "  holidays:    %d created, %d updated\n", res.HolidaysCreated, res.HolidaysUpdated)
			})
		},
	}
}

// NewImportHolidaysCommand creates the import-holidays command.
func NewImportHolidaysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import-holidays",
		Short:         "Import public holidays from the configured feed",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()

			a, err := rootOpts.open(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to open application", err)
			}
			defer a.Close()

			res, err := a.Importer.Import(ctx)
			if err != nil {
				if ferr := f.Error(ErrCodeFeed, err.Error(), nil); ferr != nil {
					return ferr
				}
				return WrapExitError(ExitCommandError, "holiday import failed", err)
			}
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "holidays: %d created, %d updated, %d skipped\n",
					res.Created, res.Updated, len(res.Skipped))
				for _, s := range res.Skipped {
					fmt.Fprintf(w, "  ! %s (%s): %s\n", s.Summary, s.Raw, s.Reason)
				}
			})
		},
	}
}

// NewBalancesCommand creates the balances command.
func NewBalancesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "balances <employee-id>",
		Short:         "Show an employee's leave balances",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()

			a, err := rootOpts.open(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to open application", err)
			}
			defer a.Close()

			emp, err := a.Store.GetEmployee(ctx, generic.EntityID(args[0]))
			if err != nil {
				return f.Fail(ExitCommandError, "unknown employee", err)
			}
			balances, err := a.Ledger.Balances(ctx, emp.ID)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to load balances", err)
			}
			types, err := a.Store.ListLeaveTypes(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to load leave types", err)
			}
			names := make(map[generic.ResourceID]string, len(types))
			for _, lt := range types {
				names[lt.ID] = lt.Name
			}

			views := make([]BalanceView, 0, len(balances))
			for _, b := range balances {
				views = append(views, BalanceView{
					LeaveTypeID: string(b.ResourceID),
					LeaveType:   names[b.ResourceID],
					Hours:       b.Amount.Value.StringFixed(2),
				})
			}
			return f.Success(views, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", emp.Name, emp.ID)
				tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
				fmt.Fprintln(tw, "LEAVE TYPE\tHOURS")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\n", v.LeaveType, v.Hours)
				}
				tw.Flush()
			})
		},
	}
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:           "runs",
		Short:         "List recent batch runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()

			a, err := rootOpts.open(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to open application", err)
			}
			defer a.Close()

			runs, err := a.Store.ListRuns(ctx, limit)
			if err != nil {
				return f.Fail(ExitCommandError, "failed to list runs", err)
			}
			views := make([]RunView, 0, len(runs))
			for _, r := range runs {
				window := r.From.String()
				if !r.From.Equal(r.To) {
					window += ".." + r.To.String()
				}
				views = append(views, RunView{
					ID:        r.ID,
					Process:   string(r.Process),
					Trigger:   r.Trigger,
					Window:    window,
					Status:    string(r.Status),
					StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
					Processed: r.Processed,
					Failed:    r.Failed,
					Hours:     r.Hours.StringFixed(2),
					Error:     r.Error,
				})
			}
			return f.Success(views, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tPROCESS\tWINDOW\tTRIGGER\tSTATUS\tPROCESSED\tFAILED\tHOURS")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
						v.StartedAt, v.Process, v.Window, v.Trigger, v.Status, v.Processed, v.Failed, v.Hours)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
