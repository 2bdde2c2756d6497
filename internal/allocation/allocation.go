// Package allocation assigns unplaced guests to hosts.
//
// The algorithm is greedy and deterministic. Guests are visited in a
// stable order, each is scored against every host that still has room in
// this run, and the best host wins (ties to the lowest host id). Running
// it twice over an unchanged pool yields the same pairs and scores.
package allocation

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/ledger"
	"github.com/roach88/dinnermatch/internal/scoring"
)

// Order selects the guest visiting order.
type Order string

const (
	// OrderRegistration visits guests by registration time, then id.
	OrderRegistration Order = "registration"

	// OrderFewestOptions visits hard-to-place guests first: fewest
	// eligible hosts at the start of the run, then registration order.
	OrderFewestOptions Order = "fewest_options"
)

// ParseOrder validates an order name.
func ParseOrder(raw string) (Order, error) {
	switch o := Order(raw); o {
	case OrderRegistration, OrderFewestOptions:
		return o, nil
	}
	return "", domain.Validationf("unknown allocation order %q", raw)
}

// HostSlot is a host together with the seats it has left.
type HostSlot struct {
	Host      domain.Host
	Remaining int
}

// Proposal is one guest-host pairing chosen by a run.
type Proposal struct {
	GuestID      string   `json:"guest_id"`
	HostID       string   `json:"host_id"`
	PartySize    int      `json:"party_size"`
	Score        float64  `json:"score"`
	Rationale    string   `json:"why_its_a_fit"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Stats summarizes a run.
type Stats struct {
	TotalGuests int `json:"total_guests"`
	Matched     int `json:"matched_guests"`
	Unmatched   int `json:"unmatched_guests"`
	Skipped     int `json:"skipped_flagged"`
	HostsUsed   int `json:"hosts_used"`
	TotalHosts  int `json:"total_hosts"`
}

// Result is the outcome of a run.
type Result struct {
	Proposals []Proposal `json:"proposals"`
	Unmatched []string   `json:"unmatched_guest_ids"`
	Stats     Stats      `json:"stats"`
}

// Options tune a run.
type Options struct {
	// MinScore drops candidate hosts scoring below it.
	MinScore float64

	// MaxAlternatives caps the runner-up host ids kept per proposal.
	MaxAlternatives int

	// FlaggedNoShows skips flagged guests with at least this many
	// no-shows. Zero disables the rule.
	FlaggedNoShows int

	Order Order
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MinScore:        0.3,
		MaxAlternatives: 3,
		FlaggedNoShows:  2,
		Order:           OrderRegistration,
	}
}

// Engine runs allocations.
type Engine struct {
	scorer   *scoring.Scorer
	opts     Options
	logger   *slog.Logger
	excluded map[string]map[string]bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExclusions keeps each guest away from the listed hosts, keyed by
// guest id. Hosts that already declined a guest are passed here.
func WithExclusions(byGuest map[string][]string) EngineOption {
	return func(e *Engine) {
		e.excluded = make(map[string]map[string]bool, len(byGuest))
		for guestID, hostIDs := range byGuest {
			set := make(map[string]bool, len(hostIDs))
			for _, id := range hostIDs {
				set[id] = true
			}
			e.excluded[guestID] = set
		}
	}
}

// WithOptions overrides the default options.
func WithOptions(o Options) EngineOption {
	return func(e *Engine) { e.opts = o }
}

// New creates an engine scoring with s.
func New(s *scoring.Scorer, opts ...EngineOption) *Engine {
	e := &Engine{
		scorer: s,
		opts:   DefaultOptions(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.opts.Order == "" {
		e.opts.Order = OrderRegistration
	}
	return e
}

type candidate struct {
	hostID    string
	score     float64
	rationale string
}

// Allocate proposes a host for each guest it can place. guests must be
// unplaced; hosts carry their remaining seats before the run.
func (e *Engine) Allocate(guests []domain.Guest, hosts []HostSlot) (Result, error) {
	hostByID := make(map[string]domain.Host, len(hosts))
	seed := make(map[string]int, len(hosts))
	for _, hs := range hosts {
		if _, dup := hostByID[hs.Host.ID]; dup {
			return Result{}, fmt.Errorf("allocate: duplicate host %s", hs.Host.ID)
		}
		hostByID[hs.Host.ID] = hs.Host
		seed[hs.Host.ID] = hs.Remaining
	}
	hostIDs := make([]string, 0, len(hosts))
	for id := range hostByID {
		hostIDs = append(hostIDs, id)
	}
	sort.Strings(hostIDs)

	tally := ledger.NewTally(seed)
	res := Result{Proposals: []Proposal{}, Unmatched: []string{}}
	res.Stats.TotalGuests = len(guests)
	res.Stats.TotalHosts = len(hosts)

	seen := make(map[string]bool, len(guests))
	var queue []domain.Guest
	for _, g := range guests {
		if seen[g.ID] {
			return Result{}, fmt.Errorf("allocate: duplicate guest %s", g.ID)
		}
		seen[g.ID] = true
		if e.skipFlagged(g) {
			e.logger.Info("skipping flagged guest", "guest_id", g.ID, "no_show_count", g.NoShowCount)
			res.Unmatched = append(res.Unmatched, g.ID)
			res.Stats.Skipped++
			continue
		}
		queue = append(queue, g)
	}
	e.order(queue, hostIDs, hostByID, tally)

	for _, g := range queue {
		cands := e.candidates(g, hostIDs, hostByID, tally)
		if len(cands) == 0 {
			e.logger.Debug("no eligible host", "guest_id", g.ID)
			res.Unmatched = append(res.Unmatched, g.ID)
			continue
		}
		best := cands[0]
		if err := tally.Reserve(best.hostID, g.PartySize); err != nil {
			return Result{}, fmt.Errorf("allocate guest %s: %w", g.ID, err)
		}

		var alts []string
		for _, c := range cands[1:] {
			if len(alts) >= e.opts.MaxAlternatives {
				break
			}
			alts = append(alts, c.hostID)
		}

		res.Proposals = append(res.Proposals, Proposal{
			GuestID:      g.ID,
			HostID:       best.hostID,
			PartySize:    g.PartySize,
			Score:        best.score,
			Rationale:    best.rationale,
			Alternatives: alts,
		})
	}

	used := map[string]bool{}
	for _, p := range res.Proposals {
		used[p.HostID] = true
	}
	res.Stats.Matched = len(res.Proposals)
	res.Stats.Unmatched = len(res.Unmatched)
	res.Stats.HostsUsed = len(used)

	if err := verify(res, guests, seed, tally); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *Engine) skipFlagged(g domain.Guest) bool {
	return e.opts.FlaggedNoShows > 0 && g.IsFlagged && g.NoShowCount >= e.opts.FlaggedNoShows
}

// candidates scores g against every host with room for it in this run,
// best first, ties to the lowest host id. Excluded hosts are skipped.
func (e *Engine) candidates(g domain.Guest, hostIDs []string, hosts map[string]domain.Host, tally *ledger.Tally) []candidate {
	var out []candidate
	for _, id := range hostIDs {
		if e.excluded[g.ID][id] {
			continue
		}
		rem := tally.Remaining(id)
		if rem < g.PartySize {
			continue
		}
		r := e.scorer.Score(g, hosts[id], rem)
		if !r.Eligible || r.Score < e.opts.MinScore {
			continue
		}
		out = append(out, candidate{hostID: id, score: r.Score, rationale: r.Rationale})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].hostID < out[j].hostID
	})
	return out
}

func (e *Engine) order(queue []domain.Guest, hostIDs []string, hosts map[string]domain.Host, tally *ledger.Tally) {
	byRegistration := func(a, b domain.Guest) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}

	switch e.opts.Order {
	case OrderFewestOptions:
		options := make(map[string]int, len(queue))
		for _, g := range queue {
			options[g.ID] = len(e.candidates(g, hostIDs, hosts, tally))
		}
		sort.SliceStable(queue, func(i, j int) bool {
			if options[queue[i].ID] != options[queue[j].ID] {
				return options[queue[i].ID] < options[queue[j].ID]
			}
			return byRegistration(queue[i], queue[j])
		})
	case OrderRegistration:
		sort.SliceStable(queue, func(i, j int) bool { return byRegistration(queue[i], queue[j]) })
	}
}

// verify re-derives the run's bookkeeping from its proposals.
func verify(res Result, guests []domain.Guest, seed map[string]int, tally *ledger.Tally) error {
	party := make(map[string]int, len(guests))
	for _, g := range guests {
		party[g.ID] = g.PartySize
	}
	assigned := map[string]bool{}
	used := map[string]int{}
	for _, p := range res.Proposals {
		if assigned[p.GuestID] {
			return fmt.Errorf("allocate: guest %s assigned twice", p.GuestID)
		}
		assigned[p.GuestID] = true
		used[p.HostID] += party[p.GuestID]
	}
	for _, id := range res.Unmatched {
		if assigned[id] {
			return fmt.Errorf("allocate: guest %s both matched and unmatched", id)
		}
	}
	for id, start := range seed {
		left := tally.Remaining(id)
		if left < 0 {
			return fmt.Errorf("allocate: host %s over capacity", id)
		}
		if start-used[id] != left {
			return fmt.Errorf("allocate: host %s capacity mismatch (start %d, used %d, left %d)", id, start, used[id], left)
		}
	}
	return nil
}
