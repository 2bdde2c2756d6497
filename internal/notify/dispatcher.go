package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/dinnermatch/internal/clock"
	"github.com/roach88/dinnermatch/internal/domain"
)

// Outbox is the store surface the dispatcher drains.
type Outbox interface {
	PendingNotifications(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkNotificationSent(ctx context.Context, id int64, at time.Time) error
	MarkNotificationFailed(ctx context.Context, id int64, reason string) error
}

const (
	// DefaultInterval is how often Run polls the outbox.
	DefaultInterval = 5 * time.Second

	// DefaultBatch is the most messages sent per poll.
	DefaultBatch = 50
)

// Dispatcher drains the outbox through a Sender.
//
// Thread-safety: Run and DrainOnce must be called from one goroutine.
type Dispatcher struct {
	outbox   Outbox
	sender   Sender
	links    Links
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		if d > 0 {
			x.interval = d
		}
	}
}

// WithBatch sets the batch size.
func WithBatch(n int) DispatcherOption {
	return func(x *Dispatcher) {
		if n > 0 {
			x.batch = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(x *Dispatcher) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithClock sets the time source used for sent_at.
func WithClock(c clock.Clock) DispatcherOption {
	return func(x *Dispatcher) { x.clock = c }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(o Outbox, s Sender, links Links, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		outbox:   o,
		sender:   s,
		links:    links,
		clock:    clock.Real{},
		logger:   slog.Default(),
		interval: DefaultInterval,
		batch:    DefaultBatch,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stats counts one drain.
type Stats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DrainOnce sends up to one batch of queued messages. Render and send
// failures mark the message failed and do not stop the batch.
func (d *Dispatcher) DrainOnce(ctx context.Context) (Stats, error) {
	var st Stats
	pending, err := d.outbox.PendingNotifications(ctx, d.batch)
	if err != nil {
		return st, fmt.Errorf("load pending notifications: %w", err)
	}
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if err := d.deliver(ctx, n); err != nil {
			st.Failed++
			d.logger.Error("notification delivery failed",
				"id", n.ID, "template", n.Template, "to", n.To, "error", err)
			if markErr := d.outbox.MarkNotificationFailed(ctx, n.ID, err.Error()); markErr != nil {
				return st, fmt.Errorf("mark notification %d failed: %w", n.ID, markErr)
			}
			continue
		}
		if err := d.outbox.MarkNotificationSent(ctx, n.ID, d.clock.Now()); err != nil {
			return st, fmt.Errorf("mark notification %d sent: %w", n.ID, err)
		}
		st.Sent++
	}
	return st, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) error {
	links, err := d.links.For(n.Template, n.ActionToken)
	if err != nil {
		return err
	}
	m, err := Render(n, links)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, m)
}

// Run drains the outbox every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "interval", d.interval, "batch", d.batch)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		st, err := d.DrainOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("dispatcher drain failed", "error", err)
		}
		if st.Sent+st.Failed > 0 {
			d.logger.Info("dispatcher drained", "sent", st.Sent, "failed", st.Failed)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}
