package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/store"
)

// NotificationsOptions holds flags for notifications list.
type NotificationsOptions struct {
	*RootOptions
	Status   string
	Template string
	Match    string
	Host     string
}

// NewNotificationsCommand creates the notifications command group.
func NewNotificationsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect and requeue outbound messages",
	}
	cmd.AddCommand(newNotificationsListCommand(rootOpts), newNotificationsRequeueCommand(rootOpts))
	return cmd
}

func newNotificationsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NotificationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox entries in enqueue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				ns, err := a.store.ListNotifications(cmd.Context(), store.NotificationFilter{
					Status:   domain.DeliveryStatus(opts.Status),
					Template: domain.Template(opts.Template),
					MatchID:  opts.Match,
					HostID:   opts.Host,
				})
				if err != nil {
					return a.out.Fail("list notifications failed", err)
				}
				if ns == nil {
					ns = []domain.Notification{}
				}
				return a.out.Result(ns, func(w io.Writer) {
					if len(ns) == 0 {
						fmt.Fprintln(w, "No notifications.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tSTATUS\tTEMPLATE\tTO\tATTEMPTS\tERROR")
					for _, n := range ns {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", n.ID, n.Status, n.Template, n.To, n.Attempts, n.LastError)
					}
					_ = tw.Flush()
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by delivery status (queued|sent|failed)")
	cmd.Flags().StringVar(&opts.Template, "template", "", "filter by template")
	cmd.Flags().StringVar(&opts.Match, "match", "", "filter by match id")
	cmd.Flags().StringVar(&opts.Host, "host", "", "filter by host id")
	return cmd
}

func newNotificationsRequeueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Queue a failed message for another delivery attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(rootOpts, cmd)
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return out.Fail("requeue failed", domain.Validationf("notification id %q is not a number", args[0]))
			}
			return withApp(rootOpts, cmd, func(a *app) error {
				if err := a.store.RequeueNotification(cmd.Context(), id); err != nil {
					return a.out.Fail("requeue failed", err)
				}
				return a.out.Result(map[string]int64{"requeued": id}, func(w io.Writer) {
					fmt.Fprintf(w, "Notification %d queued.\n", id)
				})
			})
		},
	}
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver one batch of queued messages and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				sender, closeSender, err := newSender(a.cfg, a.logger)
				if err != nil {
					return a.out.Fail("sender unavailable", err)
				}
				defer closeSender()

				d := newDispatcher(a, sender)
				st, err := d.DrainOnce(cmd.Context())
				if err != nil {
					return a.out.Fail("dispatch failed", err)
				}
				return a.out.Result(st, func(w io.Writer) {
					fmt.Fprintf(w, "Sent %d, failed %d.\n", st.Sent, st.Failed)
				})
			})
		},
	}
}
