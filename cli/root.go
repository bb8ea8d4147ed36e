// Package cli implements leavectl, the operator command line for the leave
// engine: migrations, seeding, batch runs, holiday import and balance lookups.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/leave-engine/app"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Open wires the application for a command. Nil loads config from the
	// environment.
	Open func(ctx context.Context, opts *RootOptions) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for leavectl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leavectl",
		Short: "leavectl - leave accrual and settlement operations",
		Long: `Operate the leave engine from the command line.

Runs the same batch processes the server schedules (accrual, holiday
compensation, year-end settlement), seeds reference data from YAML and
imports public holidays. Settings come from the environment and .env.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewAccrueCommand(opts))
	cmd.AddCommand(NewCompensateCommand(opts))
	cmd.AddCommand(NewSettleCommand(opts))
	cmd.AddCommand(NewCatchUpCommand(opts))
	cmd.AddCommand(NewImportHolidaysCommand(opts))
	cmd.AddCommand(NewBalancesCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

func (o *RootOptions) open(ctx context.Context) (*app.App, error) {
	if o.Open != nil {
		return o.Open(ctx, o)
	}
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, o.logger(cfg))
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// logger writes to stderr so it never mixes with command output. Batch
// progress is only shown with --verbose.
func (o *RootOptions) logger(cfg *config.Config) zerolog.Logger {
	level := "warn"
	if o.Verbose {
		level = cfg.LogLevel
	}
	return logging.Setup(os.Stderr, level, o.Format == "text")
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
