package cli

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dinnermatch/internal/domain"
)

// parseLink accepts either a raw token or a full action link and returns
// the token and the action the link carries, if any.
func parseLink(arg string) (token, action string) {
	if !strings.Contains(arg, "://") {
		return arg, ""
	}
	u, err := url.Parse(arg)
	if err != nil {
		return arg, ""
	}
	q := u.Query()
	if q.Get("token") == "" {
		return arg, ""
	}
	return q.Get("token"), q.Get("action")
}

// NewRespondCommand creates the respond command.
func NewRespondCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "respond <token-or-link> [accept|decline]",
		Short: "Record a host's answer to a match request",
		Long: `Apply the host's accept or decline from a request link. The link may be
given whole, in which case its action is used unless one is passed.

Following a link a second time shows the first answer again. An expired
link declines the match and releases its seats.

Examples:
  dinnermatch respond 'http://localhost:8080/respond?action=accept&token=...'
  dinnermatch respond <token> decline`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, action := parseLink(args[0])
			if len(args) == 2 {
				action = args[1]
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				res, err := a.svc.Respond(cmd.Context(), raw, action)
				if err != nil {
					if domain.IsTokenExpired(err) && res.MatchID != "" {
						a.out.VerboseLog("match %s is now %s", res.MatchID, res.Status)
					}
					return a.out.Fail("respond failed", err)
				}
				return a.out.Result(res, func(w io.Writer) {
					if res.Replay {
						fmt.Fprintf(w, "This request was already answered (%s). Match %s is %s.\n",
							strings.TrimPrefix(res.Outcome, "already_"), res.MatchID, res.Status)
						return
					}
					fmt.Fprintf(w, "Thank you. Match %s is now %s.\n", res.MatchID, res.Status)
					printWarnings(w, res.Warnings)
				})
			})
		},
	}
}

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <token-or-link>",
		Short: "Record a guest's attendance confirmation",
		Long:  "Confirm attendance from a day-of reminder link and show the host's address and phone.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := parseLink(args[0])
			return withApp(rootOpts, cmd, func(a *app) error {
				res, err := a.svc.ConfirmAttendance(cmd.Context(), raw)
				if err != nil {
					return a.out.Fail("confirm failed", err)
				}
				return a.out.Result(res, func(w io.Writer) {
					if res.Replay {
						fmt.Fprintln(w, "You already confirmed. See you tonight!")
					} else {
						fmt.Fprintln(w, "Thanks for confirming. See you tonight!")
					}
					fmt.Fprintf(w, "Host:    %s\n", res.HostName)
					fmt.Fprintf(w, "Address: %s\n", res.HostAddress)
					if res.HostPhone != "" {
						fmt.Fprintf(w, "Phone:   %s\n", res.HostPhone)
					}
				})
			})
		},
	}
}

// NewNoShowFormCommand creates the noshow-form command.
func NewNoShowFormCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "noshow-form <token-or-link>",
		Short: "List the guests a host can report as no-shows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := parseLink(args[0])
			return withApp(rootOpts, cmd, func(a *app) error {
				form, err := a.svc.GetNoShowForm(cmd.Context(), raw)
				if err != nil {
					return a.out.Fail("no-show form failed", err)
				}
				return a.out.Result(form, func(w io.Writer) {
					if form.Submitted {
						fmt.Fprintf(w, "%s already submitted this report (%d no-show(s)).\n", form.HostName, form.Reported)
						return
					}
					if len(form.Guests) == 0 {
						fmt.Fprintf(w, "%s has no guests to report.\n", form.HostName)
						return
					}
					fmt.Fprintf(w, "Guests who confirmed attendance at %s:\n", form.HostName)
					for _, g := range form.Guests {
						fmt.Fprintf(w, "  %s  %s (party of %d)\n", g.MatchID, g.GuestName, g.PartySize)
					}
				})
			})
		},
	}
}

// NewNoShowSubmitCommand creates the noshow-submit command.
func NewNoShowSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "noshow-submit <token-or-link> [match-id...]",
		Short: "Submit a host's no-show report",
		Long: `Mark the listed matches as no-shows. Submitting with no match ids records
that everyone came. A report can be submitted once.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := parseLink(args[0])
			return withApp(rootOpts, cmd, func(a *app) error {
				rep, err := a.svc.SubmitNoShowReport(cmd.Context(), raw, args[1:])
				if err != nil {
					return a.out.Fail("no-show report failed", err)
				}
				return a.out.Result(rep, func(w io.Writer) {
					if rep.Replay {
						fmt.Fprintf(w, "This report was already submitted (%d no-show(s)).\n", rep.Reported)
						return
					}
					fmt.Fprintf(w, "Recorded %d no-show(s).\n", rep.Reported)
					if len(rep.Skipped) > 0 {
						fmt.Fprintf(w, "Skipped: %s\n", strings.Join(rep.Skipped, ", "))
					}
				})
			})
		},
	}
}
