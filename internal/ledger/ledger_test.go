package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dinnermatch/internal/domain"
)

type fakeMatch struct {
	host   string
	party  int
	status domain.Status
}

type memBackend struct {
	seats     map[string]int
	committed map[string]int
	matches   []fakeMatch
}

func newMemBackend() *memBackend {
	return &memBackend{seats: map[string]int{}, committed: map[string]int{}}
}

func (m *memBackend) Seats(_ context.Context, id string) (int, error) {
	s, ok := m.seats[id]
	if !ok {
		return 0, domain.NotFound("host", id)
	}
	return s, nil
}

func (m *memBackend) Committed(_ context.Context, id string) (int, error) {
	return m.committed[id], nil
}

func (m *memBackend) SetCommitted(_ context.Context, id string, n int) error {
	m.committed[id] = n
	return nil
}

func (m *memBackend) SumPartySize(_ context.Context, id string, statuses []domain.Status) (int, error) {
	in := map[domain.Status]bool{}
	for _, s := range statuses {
		in[s] = true
	}
	sum := 0
	for _, mt := range m.matches {
		if mt.host == id && in[mt.status] {
			sum += mt.party
		}
	}
	return sum, nil
}

func TestPolicy_Statuses(t *testing.T) {
	assert.Equal(t, []domain.Status{
		domain.StatusProposed, domain.StatusRequested, domain.StatusAccepted, domain.StatusConfirmed,
	}, PolicyProposal.Statuses())
	assert.Equal(t, []domain.Status{
		domain.StatusRequested, domain.StatusAccepted, domain.StatusConfirmed,
	}, PolicyRequest.Statuses())

	_, err := ParsePolicy("eventually")
	assert.True(t, domain.IsValidation(err))
}

func TestLedger_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.seats["h1"] = 4
	l := New(b, PolicyProposal)

	require.NoError(t, l.Reserve(ctx, "h1", 2))
	rem, err := l.Remaining(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, rem)

	err = l.Reserve(ctx, "h1", 3)
	assert.True(t, domain.IsCapacityConflict(err))
	assert.Equal(t, 2, b.committed["h1"], "failed reserve must not write")

	require.NoError(t, l.Release(ctx, "h1", 2))
	rem, err = l.Remaining(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 4, rem)

	assert.Error(t, l.Release(ctx, "h1", 1))
	assert.True(t, domain.IsValidation(l.Reserve(ctx, "h1", 0)))
	assert.True(t, domain.IsNotFound(l.Reserve(ctx, "nope", 1)))
}

func TestLedger_TransferReservesBeforeReleasing(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.seats["a"] = 4
	b.seats["b"] = 3
	b.committed["a"] = 3
	b.committed["b"] = 2
	l := New(b, PolicyProposal)

	err := l.Transfer(ctx, "a", "b", 2)
	assert.True(t, domain.IsCapacityConflict(err))
	assert.Equal(t, 3, b.committed["a"])
	assert.Equal(t, 2, b.committed["b"])

	b.committed["b"] = 0
	require.NoError(t, l.Transfer(ctx, "a", "b", 2))
	assert.Equal(t, 1, b.committed["a"])
	assert.Equal(t, 2, b.committed["b"])

	require.NoError(t, l.Transfer(ctx, "b", "b", 2))
	assert.Equal(t, 2, b.committed["b"])
}

func TestLedger_VerifyAndRecompute(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.seats["h1"] = 6
	b.seats["h2"] = 2
	b.matches = []fakeMatch{
		{"h1", 2, domain.StatusProposed},
		{"h1", 1, domain.StatusRequested},
		{"h1", 2, domain.StatusDeclined},
		{"h2", 2, domain.StatusConfirmed},
	}
	b.committed["h1"] = 3
	b.committed["h2"] = 1

	l := New(b, PolicyProposal)
	drifts, err := l.Verify(ctx, []string{"h1", "h2"})
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, Drift{HostID: "h2", Seats: 2, Counter: 1, Recomputed: 2}, drifts[0])
	assert.Equal(t, 0, drifts[0].Remaining())

	n, err := l.Recompute(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	drifts, err = l.Verify(ctx, []string{"h1", "h2"})
	require.NoError(t, err)
	assert.Empty(t, drifts)

	// Under the request policy the proposed match no longer counts.
	_, ok, err := New(b, PolicyRequest).Check(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTally(t *testing.T) {
	seed := map[string]int{"h1": 3}
	tl := NewTally(seed)
	require.NoError(t, tl.Reserve("h1", 2))
	assert.Equal(t, 1, tl.Remaining("h1"))
	assert.True(t, domain.IsCapacityConflict(tl.Reserve("h1", 2)))
	assert.Equal(t, 3, seed["h1"], "seed map is copied")
	assert.Equal(t, map[string]int{"h1": 1}, tl.Snapshot())
	assert.Equal(t, 0, tl.Remaining("unknown"))
}
