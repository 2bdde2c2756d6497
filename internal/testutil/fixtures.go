package testutil

import (
	"strconv"
	"time"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/scoring"
)

// GuestOption customizes a fixture guest.
type GuestOption func(*domain.Guest)

// HostOption customizes a fixture host.
type HostOption func(*domain.Host)

// Guest builds a guest who fits any default Host: one seat, Upper West
// Side, English, takeout kosher, middle vibes. Registration time grows
// with the numeric suffix of id, so g1, g2, g3 register in that order.
func Guest(id string, opts ...GuestOption) domain.Guest {
	g := domain.Guest{
		ID:            id,
		Name:          "Guest " + id,
		Email:         id + "@guests.example",
		Phone:         "555-0100",
		PartySize:     1,
		Neighborhood:  scoring.UpperWestSide,
		MaxTravelTime: 30,
		Languages:     []string{"English"},
		Kosher:        domain.RequirementKosherTakeout,
		Contribution:  domain.Contribution10To25,
		Vibe:          domain.Vibe{Chabad: 3, Social: 3, Formality: 3},
		CreatedAt:     registeredAt(id),
	}
	g.UpdatedAt = g.CreatedAt
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// Host builds a fully kosher four-seat host on the Upper West Side.
func Host(id string, opts ...HostOption) domain.Host {
	h := domain.Host{
		ID:           id,
		Name:         "Host " + id,
		Email:        id + "@hosts.example",
		Phone:        "555-0199",
		Address:      "1 " + id + " Street",
		Neighborhood: scoring.UpperWestSide,
		Seats:        4,
		Languages:    []string{"English"},
		Kosher:       domain.KosherFull,
		Contribution: domain.Contribution10To25,
		Vibe:         domain.Vibe{Chabad: 3, Social: 3, Formality: 3},
		CreatedAt:    Friday.Add(-72 * time.Hour),
	}
	h.UpdatedAt = h.CreatedAt
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// PartyOf sets a guest's party size.
func PartyOf(n int) GuestOption { return func(g *domain.Guest) { g.PartySize = n } }

// Requires sets a guest's kosher requirement.
func Requires(r domain.Requirement) GuestOption { return func(g *domain.Guest) { g.Kosher = r } }

// Speaks sets a guest's languages.
func Speaks(langs ...string) GuestOption { return func(g *domain.Guest) { g.Languages = langs } }

// LivesIn sets a guest's neighborhood and travel limit.
func LivesIn(n string, maxMinutes int) GuestOption {
	return func(g *domain.Guest) {
		g.Neighborhood = n
		g.MaxTravelTime = maxMinutes
	}
}

// GuestVibe sets a guest's vibe axes.
func GuestVibe(chabad, social, formality int) GuestOption {
	return func(g *domain.Guest) { g.Vibe = domain.Vibe{Chabad: chabad, Social: social, Formality: formality} }
}

// Flagged marks a guest as flagged with the given no-show count.
func Flagged(noShows int) GuestOption {
	return func(g *domain.Guest) {
		g.IsFlagged = true
		g.NoShowCount = noShows
	}
}

// RegisteredAt overrides a guest's registration time.
func RegisteredAt(t time.Time) GuestOption { return func(g *domain.Guest) { g.CreatedAt = t } }

// Seats sets a host's capacity.
func Seats(n int) HostOption { return func(h *domain.Host) { h.Seats = n } }

// Kitchen sets a host's kosher level.
func Kitchen(l domain.KosherLevel) HostOption { return func(h *domain.Host) { h.Kosher = l } }

// HostSpeaks sets a host's languages.
func HostSpeaks(langs ...string) HostOption { return func(h *domain.Host) { h.Languages = langs } }

// HostIn sets a host's neighborhood.
func HostIn(n string) HostOption { return func(h *domain.Host) { h.Neighborhood = n } }

// HostVibe sets a host's vibe axes.
func HostVibe(chabad, social, formality int) HostOption {
	return func(h *domain.Host) { h.Vibe = domain.Vibe{Chabad: chabad, Social: social, Formality: formality} }
}

func registeredAt(id string) time.Time {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	n, _ := strconv.Atoi(id[i:])
	return Friday.Add(-48 * time.Hour).Add(time.Duration(n) * time.Minute)
}
