package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dinnermatch/internal/intake"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Import guests and hosts from CUE files",
		Long: `Validate every .cue file in dir against the intake schema and upsert the
guests and hosts it declares. Nothing is written unless every file is valid.

Re-importing a record updates it in place; no-show counts and committed
seats are kept.

Examples:
  dinnermatch import ./registrations
  dinnermatch import ./registrations --db ./friday.db --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				imp := intake.New(a.store, intake.WithLogger(a.logger))
				rep, err := imp.Import(cmd.Context(), args[0])
				if err != nil {
					return a.out.Fail("import failed", err)
				}
				return a.out.Result(rep, func(w io.Writer) {
					fmt.Fprintf(w, "Imported %d file(s): guests %d new, %d updated; hosts %d new, %d updated.\n",
						rep.Files, rep.GuestsCreated, rep.GuestsUpdated, rep.HostsCreated, rep.HostsUpdated)
					printWarnings(w, rep.Warnings)
				})
			})
		},
	}
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Files    int      `json:"files"`
	Guests   int      `json:"guests"`
	Hosts    int      `json:"hosts"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check intake files without importing",
		Long: `Validate CUE intake files against the schema without touching the database.
Faster than import for checking a registration export.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)

			files, err := intake.FindCUEFiles(args[0])
			if err != nil {
				return out.Fail("validation failed", err)
			}
			out.VerboseLog("Found %d CUE file(s) in %s", len(files), args[0])

			batch, err := intake.Load(files...)
			if err != nil {
				return out.Fail("validation failed", err)
			}
			res := ValidationResult{
				Valid:    true,
				Files:    len(files),
				Guests:   len(batch.Guests),
				Hosts:    len(batch.Hosts),
				Warnings: batch.Warnings,
			}
			return out.Result(res, func(w io.Writer) {
				fmt.Fprintf(w, "Valid: %d guest(s) and %d host(s) in %d file(s).\n", res.Guests, res.Hosts, res.Files)
				printWarnings(w, res.Warnings)
			})
		},
	}
}
