package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dinnermatch/internal/domain"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Limit int
}

// TraceResult holds the activity trail for one target.
type TraceResult struct {
	Target   string            `json:"target,omitempty"`
	Timeline []domain.Activity `json:"timeline"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [target-id]",
		Short: "Show the activity trail for a match, host or guest",
		Long: `Show audit entries in the order they were recorded. With a target id only
that match, host or guest's entries are shown.

Examples:
  dinnermatch trace m-0193
  dinnermatch trace g-dana --verbose
  dinnermatch trace --limit 20 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				entries, err := a.store.ListActivity(cmd.Context(), target, opts.Limit)
				if err != nil {
					return a.out.Fail("trace failed", err)
				}
				if entries == nil {
					entries = []domain.Activity{}
				}
				res := TraceResult{Target: target, Timeline: entries}
				return a.out.Result(res, func(w io.Writer) { outputTraceText(w, res, opts.Verbose) })
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many entries (0 for all)")
	return cmd
}

func outputTraceText(w io.Writer, res TraceResult, verbose bool) {
	if res.Target != "" {
		fmt.Fprintf(w, "Trace for %s\n", res.Target)
	}
	if len(res.Timeline) == 0 {
		fmt.Fprintln(w, "  (no activity)")
		return
	}
	for _, e := range res.Timeline {
		subject := e.TargetID
		if subject == "" {
			subject = "-"
		}
		fmt.Fprintf(w, "  [%d] %s  %-26s %-6s %s\n",
			e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Type, e.Actor, subject)
		if verbose && len(e.Details) > 0 {
			fmt.Fprintf(w, "       %s\n", formatArgs(e.Details))
		}
	}
}

// formatArgs formats details with sorted keys for deterministic output.
func formatArgs(args map[string]string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, args[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
