package allocation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dinnermatch/internal/allocation"
	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/scoring"
	"github.com/roach88/dinnermatch/internal/testutil"
)

func newEngine(opts ...func(*allocation.Options)) *allocation.Engine {
	o := allocation.DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return allocation.New(scoring.New(scoring.DefaultWeights()), allocation.WithOptions(o))
}

func slots(hosts ...domain.Host) []allocation.HostSlot {
	out := make([]allocation.HostSlot, len(hosts))
	for i, h := range hosts {
		out[i] = allocation.HostSlot{Host: h, Remaining: h.Seats}
	}
	return out
}

func TestAllocate_StrictKosherGuestUnmatched(t *testing.T) {
	g := testutil.Guest("g1", testutil.Requires(domain.RequirementFullKosherOnly))
	h := testutil.Host("h1", testutil.Kitchen(domain.KosherMixed))

	res, err := newEngine().Allocate([]domain.Guest{g}, slots(h))
	require.NoError(t, err)
	assert.Empty(t, res.Proposals)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
	assert.Equal(t, allocation.Stats{TotalGuests: 1, Unmatched: 1, TotalHosts: 1}, res.Stats)
}

func TestAllocate_TiesGoToLowestHostID(t *testing.T) {
	res, err := newEngine().Allocate(
		[]domain.Guest{testutil.Guest("g1"), testutil.Guest("g2")},
		slots(testutil.Host("h2"), testutil.Host("h1")),
	)
	require.NoError(t, err)
	require.Len(t, res.Proposals, 2)

	assert.Equal(t, "h1", res.Proposals[0].HostID)
	// h1 now has less headroom, so the next guest prefers h2.
	assert.Equal(t, "h2", res.Proposals[1].HostID)
	assert.Equal(t, []string{"h2"}, res.Proposals[0].Alternatives)
	assert.Equal(t, 2, res.Stats.HostsUsed)
}

func TestAllocate_RespectsPartySize(t *testing.T) {
	res, err := newEngine().Allocate(
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2)), testutil.Guest("g2")},
		slots(testutil.Host("h1", testutil.Seats(2))),
	)
	require.NoError(t, err)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "g1", res.Proposals[0].GuestID)
	assert.Equal(t, 2, res.Proposals[0].PartySize)
	assert.Equal(t, []string{"g2"}, res.Unmatched)
}

func TestAllocate_UsesRemainingNotSeats(t *testing.T) {
	h := testutil.Host("h1", testutil.Seats(4))
	res, err := newEngine().Allocate(
		[]domain.Guest{testutil.Guest("g1", testutil.PartyOf(2))},
		[]allocation.HostSlot{{Host: h, Remaining: 1}},
	)
	require.NoError(t, err)
	assert.Empty(t, res.Proposals)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
}

func TestAllocate_RegistrationOrder(t *testing.T) {
	early := testutil.Guest("g9", testutil.RegisteredAt(testutil.Friday.Add(-100*time.Hour)))
	late := testutil.Guest("g1")

	res, err := newEngine().Allocate([]domain.Guest{late, early}, slots(testutil.Host("h1", testutil.Seats(1))))
	require.NoError(t, err)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "g9", res.Proposals[0].GuestID)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
}

func TestAllocate_FewestOptionsFirst(t *testing.T) {
	flexible := testutil.Guest("g1")
	strict := testutil.Guest("g2", testutil.Requires(domain.RequirementFullKosherOnly))
	hosts := slots(
		testutil.Host("h1", testutil.Seats(1)),
		testutil.Host("h2", testutil.Seats(1), testutil.Kitchen(domain.KosherMixed)),
	)

	res, err := newEngine().Allocate([]domain.Guest{flexible, strict}, hosts)
	require.NoError(t, err)
	assert.Equal(t, []string{"g2"}, res.Unmatched)

	res, err = newEngine(func(o *allocation.Options) { o.Order = allocation.OrderFewestOptions }).
		Allocate([]domain.Guest{flexible, strict}, hosts)
	require.NoError(t, err)
	assert.Empty(t, res.Unmatched)
	require.Len(t, res.Proposals, 2)
	assert.Equal(t, "g2", res.Proposals[0].GuestID)
	assert.Equal(t, "h1", res.Proposals[0].HostID)
	assert.Equal(t, "h2", res.Proposals[1].HostID)
}

func TestAllocate_SkipsRepeatNoShows(t *testing.T) {
	res, err := newEngine().Allocate(
		[]domain.Guest{testutil.Guest("g1", testutil.Flagged(2)), testutil.Guest("g2", testutil.Flagged(1))},
		slots(testutil.Host("h1")),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "g2", res.Proposals[0].GuestID)
	assert.Equal(t, 1, res.Stats.Skipped)
}

func TestAllocate_ExcludedHostsSkipped(t *testing.T) {
	engine := allocation.New(scoring.New(scoring.DefaultWeights()),
		allocation.WithExclusions(map[string][]string{"g1": {"h1"}}))

	res, err := engine.Allocate(
		[]domain.Guest{testutil.Guest("g1"), testutil.Guest("g2")},
		slots(testutil.Host("h1"), testutil.Host("h2")),
	)
	require.NoError(t, err)
	require.Len(t, res.Proposals, 2)
	assert.Equal(t, "h2", res.Proposals[0].HostID)
	assert.NotContains(t, res.Proposals[0].Alternatives, "h1")
	assert.Equal(t, "h1", res.Proposals[1].HostID, "exclusions are per guest")

	// With no other host the guest stays unmatched.
	res, err = engine.Allocate([]domain.Guest{testutil.Guest("g1")}, slots(testutil.Host("h1")))
	require.NoError(t, err)
	assert.Empty(t, res.Proposals)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
}

func TestAllocate_MinScore(t *testing.T) {
	res, err := newEngine(func(o *allocation.Options) { o.MinScore = 0.99 }).
		Allocate([]domain.Guest{testutil.Guest("g1")}, slots(testutil.Host("h1")))
	require.NoError(t, err)
	assert.Empty(t, res.Proposals)
	assert.Equal(t, []string{"g1"}, res.Unmatched)
}

func TestAllocate_AlternativesCapped(t *testing.T) {
	hosts := slots(testutil.Host("h1"), testutil.Host("h2"), testutil.Host("h3"), testutil.Host("h4"), testutil.Host("h5"))
	res, err := newEngine().Allocate([]domain.Guest{testutil.Guest("g1")}, hosts)
	require.NoError(t, err)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "h1", res.Proposals[0].HostID)
	assert.Equal(t, []string{"h2", "h3", "h4"}, res.Proposals[0].Alternatives)
	assert.NotEmpty(t, res.Proposals[0].Rationale)
}

func TestAllocate_Deterministic(t *testing.T) {
	guests := []domain.Guest{
		testutil.Guest("g1", testutil.PartyOf(2), testutil.GuestVibe(5, 4, 2)),
		testutil.Guest("g2", testutil.Speaks("English", "Spanish"), testutil.LivesIn(scoring.Chelsea, 30)),
		testutil.Guest("g3", testutil.Requires(domain.RequirementKosherHouse)),
		testutil.Guest("g4", testutil.LivesIn(scoring.Harlem, 15)),
		testutil.Guest("g5", testutil.GuestVibe(1, 1, 1)),
	}
	hosts := slots(
		testutil.Host("h1", testutil.Seats(3), testutil.HostVibe(5, 4, 2)),
		testutil.Host("h2", testutil.Seats(2), testutil.HostIn(scoring.MidtownWest), testutil.HostSpeaks("Spanish", "English")),
		testutil.Host("h3", testutil.Seats(2), testutil.Kitchen(domain.KosherVegetarian), testutil.HostVibe(1, 2, 1)),
	)

	first, err := newEngine().Allocate(guests, hosts)
	require.NoError(t, err)

	reversed := make([]domain.Guest, len(guests))
	for i, g := range guests {
		reversed[len(guests)-1-i] = g
	}
	second, err := newEngine().Allocate(reversed, []allocation.HostSlot{hosts[2], hosts[0], hosts[1]})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 5, first.Stats.TotalGuests)
	assert.Equal(t, first.Stats.Matched+first.Stats.Unmatched, first.Stats.TotalGuests)
}

func TestAllocate_DuplicateInputs(t *testing.T) {
	_, err := newEngine().Allocate([]domain.Guest{testutil.Guest("g1"), testutil.Guest("g1")}, slots(testutil.Host("h1")))
	assert.Error(t, err)

	_, err = newEngine().Allocate(nil, slots(testutil.Host("h1"), testutil.Host("h1")))
	assert.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	o, err := allocation.ParseOrder("fewest_options")
	require.NoError(t, err)
	assert.Equal(t, allocation.OrderFewestOptions, o)
	_, err = allocation.ParseOrder("random")
	assert.True(t, domain.IsValidation(err))
}
