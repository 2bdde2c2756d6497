package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/dinnermatch/internal/clock"
	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/ledger"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/testutil"
	"github.com/roach88/dinnermatch/internal/workflow"
)

// Harness drives one scenario against a fresh store.
type Harness struct {
	store  *store.Store
	svc    *workflow.Service
	clock  *clock.Fake
	logger *slog.Logger
}

// Run executes a scenario in a new database at dbPath. The returned error
// is for harness failures; scenario failures are reported in Result.
func Run(ctx context.Context, s *Scenario, dbPath string) (*Result, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}
	defer st.Close()

	policy := ledger.PolicyProposal
	if s.Policy != "" {
		if policy, err = ledger.ParsePolicy(s.Policy); err != nil {
			return nil, err
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := testutil.NewClock()
	h := &Harness{
		store: st,
		clock: clk,
		svc: workflow.New(st,
			workflow.WithClock(clk),
			workflow.WithIDs(testutil.NewIDs("m")),
			workflow.WithPolicy(policy),
			workflow.WithLogger(logger),
			workflow.WithAdminEmail("organizers@dinner.example"),
		),
		logger: logger,
	}

	if err := h.seed(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}

	result := NewResult()
	for i, step := range s.Flow {
		out, err := h.execute(ctx, step)
		if err != nil {
			code := domain.CodeOf(err)
			if code == "" {
				return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Op, err)
			}
			out = map[string]any{"error": string(code)}
		}
		result.AddStep(step.Op, out)
		if msg := checkExpect(step.Expect, out); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot final state: %w", err)
	}
	for _, msg := range EvaluateAssertions(ctx, s.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context, s *Scenario) error {
	return h.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, spec := range s.Hosts {
			if err := tx.UpsertHost(ctx, spec.host()); err != nil {
				return err
			}
		}
		for _, spec := range s.Guests {
			if err := tx.UpsertGuest(ctx, spec.guest()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (spec HostSpec) host() domain.Host {
	var opts []testutil.HostOption
	if spec.Seats > 0 {
		opts = append(opts, testutil.Seats(spec.Seats))
	}
	if spec.Neighborhood != "" {
		opts = append(opts, testutil.HostIn(spec.Neighborhood))
	}
	if spec.Kosher != "" {
		opts = append(opts, testutil.Kitchen(domain.KosherLevel(spec.Kosher)))
	}
	if len(spec.Languages) > 0 {
		opts = append(opts, testutil.HostSpeaks(spec.Languages...))
	}
	if len(spec.Vibe) == 3 {
		opts = append(opts, testutil.HostVibe(spec.Vibe[0], spec.Vibe[1], spec.Vibe[2]))
	}
	return testutil.Host(spec.ID, opts...)
}

func (spec GuestSpec) guest() domain.Guest {
	var opts []testutil.GuestOption
	if spec.PartySize > 0 {
		opts = append(opts, testutil.PartyOf(spec.PartySize))
	}
	if spec.Neighborhood != "" || spec.MaxTravelTime > 0 {
		g := testutil.Guest(spec.ID)
		hood, travel := g.Neighborhood, g.MaxTravelTime
		if spec.Neighborhood != "" {
			hood = spec.Neighborhood
		}
		if spec.MaxTravelTime > 0 {
			travel = spec.MaxTravelTime
		}
		opts = append(opts, testutil.LivesIn(hood, travel))
	}
	if spec.Kosher != "" {
		opts = append(opts, testutil.Requires(domain.Requirement(spec.Kosher)))
	}
	if len(spec.Languages) > 0 {
		opts = append(opts, testutil.Speaks(spec.Languages...))
	}
	if len(spec.Vibe) == 3 {
		opts = append(opts, testutil.GuestVibe(spec.Vibe[0], spec.Vibe[1], spec.Vibe[2]))
	}
	if spec.NoShows > 0 {
		opts = append(opts, testutil.Flagged(spec.NoShows))
	}
	return testutil.Guest(spec.ID, opts...)
}

// execute runs one step and flattens its outcome into the run log.
func (h *Harness) execute(ctx context.Context, step FlowStep) (map[string]any, error) {
	switch step.Op {
	case OpGenerate:
		res, err := h.svc.GenerateMatches(ctx, workflow.GenerateOptions{Regenerate: step.Regenerate})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"created":   len(res.Created),
			"unmatched": len(res.Unmatched),
			"removed":   res.Removed,
		}, nil

	case OpSendRequest, OpFinalize, OpDelete, OpRemind, OpEdit:
		var (
			res workflow.Result
			err error
		)
		switch step.Op {
		case OpSendRequest:
			res, err = h.svc.SendRequest(ctx, step.Match)
		case OpFinalize:
			res, err = h.svc.Finalize(ctx, step.Match)
		case OpDelete:
			res, err = h.svc.Delete(ctx, step.Match)
		case OpRemind:
			res, err = h.svc.SendReminder(ctx, step.Match)
		case OpEdit:
			res, err = h.svc.Edit(ctx, step.Match, step.Host)
		}
		if err != nil {
			return nil, err
		}
		return withWarnings(map[string]any{
			"match":  res.Match.ID,
			"host":   res.Match.HostID,
			"status": string(res.Match.Status),
		}, res.Warnings), nil

	case OpHostSummary, OpNoShowRequest:
		var (
			res workflow.HostResult
			err error
		)
		if step.Op == OpHostSummary {
			res, err = h.svc.SendHostSummary(ctx, step.Host)
		} else {
			res, err = h.svc.SendNoShowRequest(ctx, step.Host)
		}
		if err != nil {
			return nil, err
		}
		return withWarnings(map[string]any{"host": res.HostID, "guests": res.Guests}, res.Warnings), nil

	case OpRespond:
		raw, err := h.link(ctx, step.Link)
		if err != nil {
			return nil, err
		}
		res, err := h.svc.Respond(ctx, raw, step.Action)
		if err != nil {
			return nil, err
		}
		return withWarnings(map[string]any{
			"match":   res.MatchID,
			"status":  string(res.Status),
			"outcome": res.Outcome,
			"replay":  res.Replay,
		}, res.Warnings), nil

	case OpConfirm:
		raw, err := h.link(ctx, step.Link)
		if err != nil {
			return nil, err
		}
		res, err := h.svc.ConfirmAttendance(ctx, raw)
		if err != nil {
			return nil, err
		}
		return map[string]any{"match": res.MatchID, "outcome": res.Outcome, "replay": res.Replay}, nil

	case OpNoShowForm:
		raw, err := h.link(ctx, step.Link)
		if err != nil {
			return nil, err
		}
		form, err := h.svc.GetNoShowForm(ctx, raw)
		if err != nil {
			return nil, err
		}
		return map[string]any{"host": form.HostID, "guests": len(form.Guests), "submitted": form.Submitted}, nil

	case OpNoShowSubmit:
		raw, err := h.link(ctx, step.Link)
		if err != nil {
			return nil, err
		}
		rep, err := h.svc.SubmitNoShowReport(ctx, raw, step.Matches)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"host":     rep.HostID,
			"reported": rep.Reported,
			"skipped":  len(rep.Skipped),
			"replay":   rep.Replay,
		}, nil

	case OpSweep:
		res, err := h.svc.SweepExpired(ctx)
		if err != nil {
			return nil, err
		}
		return withWarnings(map[string]any{"declined": len(res.Declined), "retired": res.Retired}, res.Warnings), nil

	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return nil, err
		}
		h.clock.Advance(d)
		return map[string]any{"by": d.String()}, nil
	}
	return nil, fmt.Errorf("unknown op %q", step.Op)
}

func withWarnings(out map[string]any, warnings []string) map[string]any {
	if len(warnings) > 0 {
		out["warnings"] = len(warnings)
	}
	return out
}

// link returns the raw token of the newest queued notification matching
// ref. A missing link surfaces as NOT_FOUND so scenarios can expect it.
func (h *Harness) link(ctx context.Context, ref *LinkRef) (string, error) {
	ns, err := h.store.ListNotifications(ctx, store.NotificationFilter{
		Template: domain.Template(ref.Template),
		MatchID:  ref.Match,
		HostID:   ref.Host,
	})
	if err != nil {
		return "", err
	}
	for i := len(ns) - 1; i >= 0; i-- {
		if ns[i].ActionToken != "" {
			return ns[i].ActionToken, nil
		}
	}
	return "", domain.InvalidLink()
}

func (h *Harness) snapshot(ctx context.Context, r *Result) error {
	matches, err := h.store.ListMatches(ctx, store.MatchFilter{})
	if err != nil {
		return err
	}
	for _, m := range matches {
		r.Final.Matches = append(r.Final.Matches, MatchState{
			ID: m.ID, Guest: m.GuestID, Host: m.HostID, Status: string(m.Status), NoShow: m.NoShow,
		})
	}
	sort.Slice(r.Final.Matches, func(i, j int) bool { return r.Final.Matches[i].ID < r.Final.Matches[j].ID })

	hosts, err := h.store.ListHosts(ctx)
	if err != nil {
		return err
	}
	for _, host := range hosts {
		rem, err := h.remaining(ctx, host.ID)
		if err != nil {
			return err
		}
		r.Final.Remaining[host.ID] = rem
	}

	ns, err := h.store.ListNotifications(ctx, store.NotificationFilter{})
	if err != nil {
		return err
	}
	for _, n := range ns {
		r.Final.Notifications = append(r.Final.Notifications, string(n.Template))
	}
	return nil
}

func (h *Harness) remaining(ctx context.Context, hostID string) (int, error) {
	seats, err := h.store.Seats(ctx, hostID)
	if err != nil {
		return 0, err
	}
	committed, err := h.store.Committed(ctx, hostID)
	if err != nil {
		return 0, err
	}
	return seats - committed, nil
}

// checkExpect compares expected values to the step result by their
// printed form, so YAML ints and Go ints compare equal.
func checkExpect(expect, actual map[string]any) string {
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			return fmt.Sprintf("expected %s=%v, result has no %s (result %v)", k, expect[k], k, actual)
		}
		if fmt.Sprint(got) != fmt.Sprint(expect[k]) {
			return fmt.Sprintf("expected %s=%v, got %v", k, expect[k], got)
		}
	}
	return ""
}
