package workflow

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dinnermatch/internal/clock"
	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/ledger"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/testutil"
)

type fixture struct {
	ctx   context.Context
	svc   *Service
	store *store.Store
	clock *clock.Fake
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "workflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clk := testutil.NewClock()
	base := []Option{
		WithClock(clk),
		WithIDs(testutil.NewIDs("m")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAdminEmail("organizers@dinner.example"),
	}
	return &fixture{
		ctx:   context.Background(),
		svc:   New(st, append(base, opts...)...),
		store: st,
		clock: clk,
	}
}

func (f *fixture) seed(t *testing.T, guests []domain.Guest, hosts []domain.Host) {
	t.Helper()
	for _, h := range hosts {
		require.NoError(t, f.store.UpsertHost(f.ctx, h))
	}
	for _, g := range guests {
		require.NoError(t, f.store.UpsertGuest(f.ctx, g))
	}
}

// remaining reads a host's remaining seats from the running counter.
func (f *fixture) remaining(t *testing.T, hostID string) int {
	t.Helper()
	seats, err := f.store.Seats(f.ctx, hostID)
	require.NoError(t, err)
	committed, err := f.store.Committed(f.ctx, hostID)
	require.NoError(t, err)
	return seats - committed
}

// assertInvariants recomputes every host's remaining seats from its
// matches and checks no guest holds two live matches.
func (f *fixture) assertInvariants(t *testing.T) {
	t.Helper()
	hosts, err := f.store.ListHosts(f.ctx)
	require.NoError(t, err)
	matches, err := f.store.ListMatches(f.ctx, store.MatchFilter{})
	require.NoError(t, err)

	used := map[string]int{}
	live := map[string]int{}
	for _, m := range matches {
		if f.svc.Policy().Committed(m.Status) {
			used[m.HostID] += m.PartySize
		}
		if m.Status.Live() {
			live[m.GuestID]++
		}
	}
	for _, h := range hosts {
		require.Equal(t, h.Seats-used[h.ID], f.remaining(t, h.ID), "remaining capacity of %s", h.ID)
		require.LessOrEqual(t, used[h.ID], h.Seats, "host %s over capacity", h.ID)
	}
	for guestID, n := range live {
		require.LessOrEqual(t, n, 1, "guest %s double-booked", guestID)
	}

	drifts, err := f.svc.VerifyCapacity(f.ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

// linkToken returns the raw token of the newest queued message of tmpl
// about subject (a match id, or a host id for host-scoped messages).
func (f *fixture) linkToken(t *testing.T, tmpl domain.Template, subject string) string {
	t.Helper()
	all, err := f.store.ListNotifications(f.ctx, store.NotificationFilter{Template: tmpl})
	require.NoError(t, err)
	for i := len(all) - 1; i >= 0; i-- {
		n := all[i]
		if n.MatchID == subject || (n.MatchID == "" && n.HostID == subject) {
			require.NotEmpty(t, n.ActionToken, "%s message for %s carries no token", tmpl, subject)
			return n.ActionToken
		}
	}
	t.Fatalf("no %s message for %s", tmpl, subject)
	return ""
}

func (f *fixture) notifications(t *testing.T, filter store.NotificationFilter) []domain.Notification {
	t.Helper()
	out, err := f.store.ListNotifications(f.ctx, filter)
	require.NoError(t, err)
	return out
}

// generateOne runs generation and returns the single created match.
func (f *fixture) generateOne(t *testing.T) domain.Match {
	t.Helper()
	res, err := f.svc.GenerateMatches(f.ctx, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	return res.Created[0]
}

// confirmed drives a fresh match to confirmed through the host's link.
func (f *fixture) confirmed(t *testing.T, matchID string) {
	t.Helper()
	_, err := f.svc.SendRequest(f.ctx, matchID)
	require.NoError(t, err)
	_, err = f.svc.Respond(f.ctx, f.linkToken(t, domain.TemplateMatchRequest, matchID), "accept")
	require.NoError(t, err)
	_, err = f.svc.Finalize(f.ctx, matchID)
	require.NoError(t, err)
}

func requestPolicy() Option { return WithPolicy(ledger.PolicyRequest) }
