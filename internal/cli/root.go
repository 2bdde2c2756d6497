// Package cli implements the dinnermatch command line: organizer
// operations, the link actions hosts and guests take, intake, delivery
// and the scenario harness.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Database overrides DINNERMATCH_DB_PATH when set.
	Database string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dinnermatch CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dinnermatch",
		Short: "Friday night dinner matching",
		Long: `Match dinner guests with hosts and run the request, confirmation,
reminder and no-show workflow around each match.

Configuration is read from DINNERMATCH_* environment variables. The --db
flag overrides DINNERMATCH_DB_PATH.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	cmd.AddCommand(
		NewImportCommand(opts),
		NewValidateCommand(opts),
		NewGenerateCommand(opts),
		NewMatchesCommand(opts),
		NewMatchCommand(opts),
		NewStatusCommand(opts),
		NewFlagCommand(opts),
		NewRequestCommand(opts),
		NewFinalizeCommand(opts),
		NewEditCommand(opts),
		NewDeleteCommand(opts),
		NewRemindCommand(opts),
		NewHostSummaryCommand(opts),
		NewNoShowRequestCommand(opts),
		NewRespondCommand(opts),
		NewConfirmCommand(opts),
		NewNoShowFormCommand(opts),
		NewNoShowSubmitCommand(opts),
		NewSweepCommand(opts),
		NewDashboardCommand(opts),
		NewVerifyCommand(opts),
		NewTraceCommand(opts),
		NewNotificationsCommand(opts),
		NewDispatchCommand(opts),
		NewServeCommand(opts),
		NewTestCommand(opts),
	)

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors a command already reported through its formatter are not
// printed again.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return GetExitCode(err)
}

// Main is the entry point used by cmd/dinnermatch.
func Main() {
	os.Exit(Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
