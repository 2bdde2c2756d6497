package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/ledger"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/workflow"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Regenerate bool
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Propose a host for every unplaced guest",
		Long: `Run the allocation engine over every guest without a live match and
store the resulting proposals.

With --regenerate, existing proposed matches are deleted first and their
seats released. Requested, accepted and confirmed matches are never touched.

Examples:
  dinnermatch generate
  dinnermatch generate --regenerate --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				res, err := a.svc.GenerateMatches(cmd.Context(), workflow.GenerateOptions{Regenerate: opts.Regenerate})
				if err != nil {
					return a.out.Fail("generate failed", err)
				}
				return a.out.Result(res, func(w io.Writer) {
					if res.Removed > 0 {
						fmt.Fprintf(w, "Removed %d proposed match(es).\n", res.Removed)
					}
					fmt.Fprintf(w, "Created %d match(es) for %d guest(s); %d unmatched, %d flagged guest(s) skipped.\n",
						len(res.Created), res.Stats.TotalGuests, len(res.Unmatched), res.Stats.Skipped)
					printMatches(w, res.Created)
					if len(res.Unmatched) > 0 {
						fmt.Fprintf(w, "Unmatched: %s\n", strings.Join(res.Unmatched, ", "))
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Regenerate, "regenerate", false, "delete proposed matches before allocating")
	return cmd
}

// MatchesOptions holds flags for the matches command.
type MatchesOptions struct {
	*RootOptions
	Statuses []string
	Host     string
	Guest    string
}

// NewMatchesCommand creates the matches command.
func NewMatchesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MatchesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List matches",
		Long: `List matches in creation order, optionally narrowed by status, host or guest.

Examples:
  dinnermatch matches
  dinnermatch matches --status requested --status accepted
  dinnermatch matches --host h-levy --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				f := store.MatchFilter{HostID: opts.Host, GuestID: opts.Guest}
				for _, raw := range opts.Statuses {
					st, err := domain.ParseStatus(raw)
					if err != nil {
						return a.out.Fail("invalid status", err)
					}
					f.Statuses = append(f.Statuses, st)
				}
				matches, err := a.svc.ListMatches(cmd.Context(), f)
				if err != nil {
					return a.out.Fail("list matches failed", err)
				}
				if matches == nil {
					matches = []domain.Match{}
				}
				return a.out.Result(matches, func(w io.Writer) {
					if len(matches) == 0 {
						fmt.Fprintln(w, "No matches.")
						return
					}
					printMatches(w, matches)
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.Statuses, "status", nil, "filter by status (repeatable)")
	cmd.Flags().StringVar(&opts.Host, "host", "", "filter by host id")
	cmd.Flags().StringVar(&opts.Guest, "guest", "", "filter by guest id")
	return cmd
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match <match-id>",
		Short: "Show one match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				m, err := a.svc.GetMatch(cmd.Context(), args[0])
				if err != nil {
					return a.out.Fail("get match failed", err)
				}
				return a.out.Result(m, func(w io.Writer) { printMatchDetail(w, m) })
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <guest-id>",
		Short: "Show a guest's placement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				p, err := a.svc.GuestStatus(cmd.Context(), args[0])
				if err != nil {
					return a.out.Fail("guest status failed", err)
				}
				return a.out.Result(p, func(w io.Writer) {
					if p.Status == workflow.Unmatched {
						fmt.Fprintf(w, "%s: unmatched\n", p.GuestID)
						return
					}
					fmt.Fprintf(w, "%s: %s with %s (%s)\n", p.GuestID, p.Status, p.HostID, p.MatchID)
				})
			})
		},
	}
}

// FlagOptions holds flags for the flag command.
type FlagOptions struct {
	*RootOptions
	Reason string
}

// NewFlagCommand creates the flag command.
func NewFlagCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlagOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "flag <guest-id>",
		Short: "Flag a guest for organizer attention",
		Long: `Mark a guest as flagged and record why. Flagging does not add a no-show;
only a host's report does.

Examples:
  dinnermatch flag g-cohen
  dinnermatch flag g-cohen --reason "left early twice"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				g, err := a.svc.FlagGuest(cmd.Context(), args[0], opts.Reason)
				if err != nil {
					return a.out.Fail("flag failed", err)
				}
				return a.out.Result(g, func(w io.Writer) {
					fmt.Fprintf(w, "%s: flagged (%d no-show(s))\n", g.ID, g.NoShowCount)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the guest is flagged")
	return cmd
}

// matchCommand builds a command that applies one transition to a match.
func matchCommand(rootOpts *RootOptions, use, short, long, verb string,
	op func(a *app, cmd *cobra.Command, args []string) (workflow.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(strings.Count(use, "<")),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				res, err := op(a, cmd, args)
				if err != nil {
					return a.out.Fail(verb+" failed", err)
				}
				return a.out.Result(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s (host %s)\n", res.Match.ID, res.Match.Status, res.Match.HostID)
					printWarnings(w, res.Warnings)
				})
			})
		},
	}
}

// NewRequestCommand creates the request command.
func NewRequestCommand(rootOpts *RootOptions) *cobra.Command {
	return matchCommand(rootOpts, "request <match-id>", "Send a match request to the host",
		`Move a proposed match to requested and queue the request email with
accept and decline links.`,
		"request",
		func(a *app, cmd *cobra.Command, args []string) (workflow.Result, error) {
			return a.svc.SendRequest(cmd.Context(), args[0])
		})
}

// NewFinalizeCommand creates the finalize command.
func NewFinalizeCommand(rootOpts *RootOptions) *cobra.Command {
	return matchCommand(rootOpts, "finalize <match-id>", "Confirm an accepted match",
		`Move an accepted match to confirmed and queue the contact details to
both the guest and the host.`,
		"finalize",
		func(a *app, cmd *cobra.Command, args []string) (workflow.Result, error) {
			return a.svc.Finalize(cmd.Context(), args[0])
		})
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	return matchCommand(rootOpts, "edit <match-id> <host-id>", "Reassign a match to another host",
		`Reassign a proposed or requested match. A requested match is sent to the
new host and the old host's link stops working.`,
		"edit",
		func(a *app, cmd *cobra.Command, args []string) (workflow.Result, error) {
			return a.svc.Edit(cmd.Context(), args[0], args[1])
		})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return matchCommand(rootOpts, "delete <match-id>", "Delete a proposed match",
		"Delete a proposed match and release any seats it held.",
		"delete",
		func(a *app, cmd *cobra.Command, args []string) (workflow.Result, error) {
			return a.svc.Delete(cmd.Context(), args[0])
		})
}

// NewRemindCommand creates the remind command.
func NewRemindCommand(rootOpts *RootOptions) *cobra.Command {
	return matchCommand(rootOpts, "remind <match-id>", "Send the day-of reminder to the guest",
		"Queue the day-of reminder with an attendance confirmation link for a confirmed match.",
		"remind",
		func(a *app, cmd *cobra.Command, args []string) (workflow.Result, error) {
			return a.svc.SendReminder(cmd.Context(), args[0])
		})
}

// hostCommand builds a command that sends a host-scoped message.
func hostCommand(rootOpts *RootOptions, use, short, verb string,
	op func(a *app, cmd *cobra.Command, hostID string) (workflow.HostResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				res, err := op(a, cmd, args[0])
				if err != nil {
					return a.out.Fail(verb+" failed", err)
				}
				return a.out.Result(res, func(w io.Writer) {
					fmt.Fprintf(w, "Queued %s for %s covering %d confirmed guest(s).\n", verb, res.HostID, res.Guests)
					printWarnings(w, res.Warnings)
				})
			})
		},
	}
}

// NewHostSummaryCommand creates the host-summary command.
func NewHostSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	return hostCommand(rootOpts, "host-summary <host-id>", "Send a host the list of confirmed guests", "host summary",
		func(a *app, cmd *cobra.Command, hostID string) (workflow.HostResult, error) {
			return a.svc.SendHostSummary(cmd.Context(), hostID)
		})
}

// NewNoShowRequestCommand creates the noshow-request command.
func NewNoShowRequestCommand(rootOpts *RootOptions) *cobra.Command {
	return hostCommand(rootOpts, "noshow-request <host-id>", "Ask a host to report no-shows", "no-show request",
		func(a *app, cmd *cobra.Command, hostID string) (workflow.HostResult, error) {
			return a.svc.SendNoShowRequest(cmd.Context(), hostID)
		})
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Decline requests whose response link expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				res, err := a.svc.SweepExpired(cmd.Context())
				if err != nil {
					return a.out.Fail("sweep failed", err)
				}
				return a.out.Result(res, func(w io.Writer) {
					fmt.Fprintf(w, "Declined %d expired request(s), retired %d token(s).\n", len(res.Declined), res.Retired)
					for _, id := range res.Declined {
						fmt.Fprintf(w, "  %s\n", id)
					}
					printWarnings(w, res.Warnings)
				})
			})
		},
	}
}

// NewDashboardCommand creates the dashboard command.
func NewDashboardCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show placement and capacity totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				d, err := a.svc.Dashboard(cmd.Context())
				if err != nil {
					return a.out.Fail("dashboard failed", err)
				}
				return a.out.Result(d, func(w io.Writer) { printDashboard(w, d) })
			})
		},
	}
}

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Repair bool
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check committed seat counters against matches",
		Long: `Recompute every host's committed seats from its matches and compare
with the running counter.

Exit codes:
  0 - No drift, or drift repaired with --repair
  1 - Drift found`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				check := a.svc.VerifyCapacity
				if opts.Repair {
					check = a.svc.RepairCapacity
				}
				drift, err := check(cmd.Context())
				if err != nil {
					return a.out.Fail("verify failed", err)
				}
				if len(drift) > 0 && !opts.Repair {
					_ = a.out.Error(ErrCodeDrift, fmt.Sprintf("%d host(s) drifted", len(drift)), drift)
					return &ExitError{Code: ExitFailure, Message: "capacity drift", Reported: true}
				}
				if drift == nil {
					drift = []ledger.Drift{}
				}
				return a.out.Result(drift, func(w io.Writer) {
					if len(drift) == 0 {
						fmt.Fprintln(w, "Capacity counters agree with matches.")
						return
					}
					fmt.Fprintf(w, "Repaired %d host(s):\n", len(drift))
					for _, d := range drift {
						fmt.Fprintf(w, "  %s: counter %d -> %d\n", d.HostID, d.Counter, d.Recomputed)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Repair, "repair", false, "overwrite drifted counters with the recomputed value")
	return cmd
}

func printMatches(w io.Writer, matches []domain.Match) {
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "MATCH\tGUEST\tHOST\tSTATUS\tPARTY\tSCORE")
	for _, m := range matches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\n", m.ID, m.GuestID, m.HostID, m.Status, m.PartySize, m.Score)
	}
	_ = tw.Flush()
}

func printMatchDetail(w io.Writer, m domain.Match) {
	fmt.Fprintf(w, "Match %s\n", m.ID)
	fmt.Fprintf(w, "  Guest:  %s (party of %d)\n", m.GuestID, m.PartySize)
	fmt.Fprintf(w, "  Host:   %s\n", m.HostID)
	fmt.Fprintf(w, "  Status: %s\n", m.Status)
	fmt.Fprintf(w, "  Score:  %.2f\n", m.Score)
	fmt.Fprintf(w, "  Why:    %s\n", m.WhyItsAFit)
	if len(m.Alternatives) > 0 {
		fmt.Fprintf(w, "  Alternatives: %s\n", strings.Join(m.Alternatives, ", "))
	}
	if m.AttendanceConfirmedAt != nil {
		fmt.Fprintf(w, "  Attendance confirmed: %s\n", m.AttendanceConfirmedAt.Format("2006-01-02 15:04"))
	}
	if m.NoShow {
		fmt.Fprintln(w, "  Reported as a no-show")
	}
}

func printDashboard(w io.Writer, d workflow.Dashboard) {
	fmt.Fprintf(w, "Guests: %d (%d placed)\n", d.TotalGuests, d.GuestsPlaced)
	fmt.Fprintf(w, "Hosts:  %d (%d of %d seats open)\n", d.TotalHosts, d.RemainingSeats, d.TotalSeats)
	fmt.Fprintf(w, "Pending host decisions:  %d\n", d.PendingDecisions)
	fmt.Fprintf(w, "Awaiting finalization:   %d\n", d.AwaitingFinalize)
	fmt.Fprintf(w, "Confirmed:               %d (%d confirmed attendance)\n", d.Confirmed, d.AttendanceConfirmed)
	if d.FailedNotifications > 0 {
		fmt.Fprintf(w, "Failed notifications:    %d\n", d.FailedNotifications)
	}
	if d.UnqueuedNotifications > 0 {
		fmt.Fprintf(w, "Unqueued notifications:  %d (see trace)\n", d.UnqueuedNotifications)
	}
	if len(d.HostsWithRoom) > 0 {
		fmt.Fprintln(w, "Hosts with room:")
		for _, h := range d.HostsWithRoom {
			fmt.Fprintf(w, "  %s (%s): %d of %d\n", h.HostID, h.Name, h.Remaining, h.Seats)
		}
	}
	if len(d.UnmatchedStrictKosher) > 0 {
		fmt.Fprintf(w, "Unmatched strict kosher guests: %s\n", strings.Join(d.UnmatchedStrictKosher, ", "))
	}
}

func printWarnings(w io.Writer, warnings []string) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
}
