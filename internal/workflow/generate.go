package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/dinnermatch/internal/allocation"
	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/store"
)

// GenerateOptions controls a generation run.
type GenerateOptions struct {
	// Regenerate deletes every proposed match, releasing its seats,
	// before allocating.
	Regenerate bool
}

// GenerateResult is the outcome of a generation run.
type GenerateResult struct {
	Created   []domain.Match   `json:"created"`
	Unmatched []string         `json:"unmatched_guest_ids"`
	Removed   int              `json:"removed_proposals"`
	Stats     allocation.Stats `json:"stats"`
}

// GenerateMatches proposes a host for every unplaced guest it can. The
// whole run is one transaction.
func (s *Service) GenerateMatches(ctx context.Context, opts GenerateOptions) (GenerateResult, error) {
	var res GenerateResult

	_, err := s.withTx(ctx, func(t *txn) error {
		res = GenerateResult{Created: []domain.Match{}, Unmatched: []string{}}
		if opts.Regenerate {
			removed, err := s.clearProposals(ctx, t)
			if err != nil {
				return err
			}
			res.Removed = removed
		}

		guests, err := t.UnplacedGuests(ctx)
		if err != nil {
			return err
		}
		hosts, err := t.ListHosts(ctx)
		if err != nil {
			return err
		}
		slots := make([]allocation.HostSlot, 0, len(hosts))
		for _, h := range hosts {
			rem, err := t.ledger.Remaining(ctx, h.ID)
			if err != nil {
				return err
			}
			if rem > 0 {
				slots = append(slots, allocation.HostSlot{Host: h, Remaining: rem})
			}
		}

		declined, err := s.declinedHosts(ctx, t)
		if err != nil {
			return err
		}
		engine := allocation.New(s.scorer,
			allocation.WithOptions(s.allocOpts),
			allocation.WithLogger(s.logger),
			allocation.WithExclusions(declined))

		alloc, err := engine.Allocate(guests, slots)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, p := range alloc.Proposals {
			m := domain.Match{
				ID:           s.ids.Generate(),
				GuestID:      p.GuestID,
				HostID:       p.HostID,
				Status:       domain.StatusProposed,
				PartySize:    p.PartySize,
				Score:        p.Score,
				WhyItsAFit:   p.Rationale,
				Alternatives: p.Alternatives,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if s.policy.Committed(domain.StatusProposed) {
				if err := t.ledger.Reserve(ctx, m.HostID, m.PartySize); err != nil {
					return fmt.Errorf("generate: %w", err)
				}
			}
			if err := t.InsertMatch(ctx, m); err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			res.Created = append(res.Created, m)
		}
		res.Unmatched = alloc.Unmatched
		res.Stats = alloc.Stats

		return s.record(ctx, t, domain.ActivityMatchesGenerated, domain.ActorAdmin, "", "", map[string]string{
			"matches_created":   strconv.Itoa(len(res.Created)),
			"unmatched_guests":  strconv.Itoa(len(res.Unmatched)),
			"skipped_flagged":   strconv.Itoa(alloc.Stats.Skipped),
			"removed_proposals": strconv.Itoa(res.Removed),
		})
	})
	if err != nil {
		return GenerateResult{}, err
	}

	s.logger.Info("matches generated",
		"created", len(res.Created), "unmatched", len(res.Unmatched), "removed", res.Removed)
	return res, nil
}

// declinedHosts maps each guest to the hosts that already turned them
// down, so a new run never proposes the same pair again.
func (s *Service) declinedHosts(ctx context.Context, t *txn) (map[string][]string, error) {
	declined, err := t.ListMatches(ctx, store.MatchFilter{Statuses: []domain.Status{domain.StatusDeclined}})
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(declined))
	for _, m := range declined {
		out[m.GuestID] = append(out[m.GuestID], m.HostID)
	}
	return out, nil
}

func (s *Service) clearProposals(ctx context.Context, t *txn) (int, error) {
	proposed, err := t.ListMatches(ctx, store.MatchFilter{Statuses: []domain.Status{domain.StatusProposed}})
	if err != nil {
		return 0, err
	}
	for _, m := range proposed {
		if err := s.releaseIfHeld(ctx, t, m); err != nil {
			return 0, err
		}
		if err := t.DeleteMatch(ctx, m.ID); err != nil {
			return 0, err
		}
	}
	return len(proposed), nil
}

// ListMatches returns matches narrowed by f, in creation order.
func (s *Service) ListMatches(ctx context.Context, f store.MatchFilter) ([]domain.Match, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, domain.Validationf("unknown match status %q", st)
		}
	}
	return s.store.ListMatches(ctx, f)
}

// GetMatch returns one match.
func (s *Service) GetMatch(ctx context.Context, id string) (domain.Match, error) {
	return s.store.GetMatch(ctx, id)
}

// Placement is a guest's derived match status.
type Placement struct {
	GuestID string `json:"guest_id"`

	// Status is the live match's status, or "unmatched".
	Status  string `json:"match_status"`
	MatchID string `json:"match_id,omitempty"`
	HostID  string `json:"host_id,omitempty"`
}

// Unmatched is the placement status of a guest with no live match.
const Unmatched = "unmatched"

// GuestStatus derives a guest's placement from its matches.
func (s *Service) GuestStatus(ctx context.Context, guestID string) (Placement, error) {
	if _, err := s.store.GetGuest(ctx, guestID); err != nil {
		return Placement{}, err
	}
	m, ok, err := s.store.LiveMatchForGuest(ctx, guestID)
	if err != nil {
		return Placement{}, err
	}
	if !ok {
		return Placement{GuestID: guestID, Status: Unmatched}, nil
	}
	return Placement{GuestID: guestID, Status: string(m.Status), MatchID: m.ID, HostID: m.HostID}, nil
}
