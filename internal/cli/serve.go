package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dinnermatch/internal/config"
	"github.com/roach88/dinnermatch/internal/notify"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the notification dispatcher and expiry sweep",
		Long: `Run the background loops until interrupted: the dispatcher delivers queued
messages every DINNERMATCH_DISPATCH_INTERVAL and the sweep declines requests
whose response link expired every DINNERMATCH_SWEEP_INTERVAL.

Messages go to the log unless DINNERMATCH_SENDER=amqp, in which case they
are published to DINNERMATCH_AMQP_EXCHANGE.

Example:
  dinnermatch serve --db ./friday.db --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(a *app) error {
				return serve(cmd, a)
			})
		},
	}
}

func serve(cmd *cobra.Command, a *app) error {
	sender, closeSender, err := newSender(a.cfg, a.logger)
	if err != nil {
		return a.out.Fail("sender unavailable", err)
	}
	defer closeSender()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	d := newDispatcher(a, sender)

	a.logger.Info("serving", "db", a.cfg.DBPath, "sender", a.cfg.Sender, "sweep_interval", a.cfg.SweepInterval)
	fmt.Fprintln(cmd.OutOrStdout(), "Dispatcher and sweep running. Press Ctrl-C to stop.")

	var wg sync.WaitGroup
	var dispatchErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatchErr = d.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweepLoop(ctx, a, a.cfg.SweepInterval)
	}()
	wg.Wait()

	if dispatchErr != nil && !errors.Is(dispatchErr, context.Canceled) {
		return WrapExitError(ExitFailure, "dispatcher error", dispatchErr)
	}
	a.logger.Info("stopped gracefully")
	return nil
}

// sweepLoop runs SweepExpired every interval until ctx is cancelled.
func sweepLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.svc.SweepExpired(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newDispatcher(a *app, sender notify.Sender) *notify.Dispatcher {
	return notify.NewDispatcher(a.store, sender, notify.Links{BaseURL: a.cfg.BaseURL},
		notify.WithInterval(a.cfg.DispatchInterval),
		notify.WithBatch(a.cfg.DispatchBatch),
		notify.WithLogger(a.logger),
	)
}

// newSender builds the configured sender and the func that releases it.
func newSender(cfg config.Config, logger *slog.Logger) (notify.Sender, func(), error) {
	switch cfg.Sender {
	case config.SenderAMQP:
		s, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Error("error closing amqp sender", "error", err)
			}
		}, nil
	default:
		return notify.LogSender{Logger: logger}, func() {}, nil
	}
}
