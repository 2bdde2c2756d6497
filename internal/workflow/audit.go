package workflow

import (
	"context"
	"fmt"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/ledger"
	"github.com/roach88/dinnermatch/internal/store"
)

// SweepResult reports a sweep of expired host_response tokens.
type SweepResult struct {
	// Declined lists matches declined because their request lapsed.
	Declined []string `json:"declined_match_ids"`

	// Retired counts expired tokens consumed without a status change.
	Retired  int      `json:"retired_tokens"`
	Warnings []string `json:"warnings,omitempty"`
}

// SweepExpired declines every requested match whose host_response token
// expired unanswered, releasing its seats. Each token is handled in its
// own transaction, so the sweep can run alongside host responses.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Declined: []string{}}
	tokens, err := s.store.ExpiredOpenTokens(ctx, domain.PurposeHostResponse, s.clock.Now())
	if err != nil {
		return SweepResult{}, err
	}
	for _, tok := range tokens {
		var declined bool
		warnings, err := s.withTx(ctx, func(t *txn) error {
			cur, err := t.GetToken(ctx, tok.Digest)
			if err != nil {
				return err
			}
			if cur.Consumed() {
				return nil
			}
			before, err := t.GetMatch(ctx, cur.MatchID)
			if err != nil {
				return err
			}
			m, err := s.expire(ctx, t, cur)
			if err != nil {
				return err
			}
			declined = before.Status == domain.StatusRequested && m.Status == domain.StatusDeclined
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("sweep token for match %s: %w", tok.MatchID, err)
		}
		res.Warnings = append(res.Warnings, warnings...)
		if declined {
			res.Declined = append(res.Declined, tok.MatchID)
		} else {
			res.Retired++
		}
	}
	if len(tokens) > 0 {
		s.logger.Info("expired requests swept", "declined", len(res.Declined), "retired", res.Retired)
	}
	return res, nil
}

// VerifyCapacity recomputes every host's committed seats from its matches
// and returns the hosts whose running counter disagrees.
func (s *Service) VerifyCapacity(ctx context.Context) ([]ledger.Drift, error) {
	var drifts []ledger.Drift
	_, err := s.withTx(ctx, func(t *txn) error {
		ids, err := hostIDs(ctx, t)
		if err != nil {
			return err
		}
		drifts, err = t.ledger.Verify(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		s.logger.Error("capacity drift", "host_id", d.HostID, "counter", d.Counter, "recomputed", d.Recomputed, "seats", d.Seats)
	}
	return drifts, nil
}

// RepairCapacity resets every drifted counter from its matches and
// returns what was repaired. Run it after changing the reservation policy.
func (s *Service) RepairCapacity(ctx context.Context) ([]ledger.Drift, error) {
	var repaired []ledger.Drift
	_, err := s.withTx(ctx, func(t *txn) error {
		ids, err := hostIDs(ctx, t)
		if err != nil {
			return err
		}
		drifts, err := t.ledger.Verify(ctx, ids)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			if d.Counter == d.Recomputed {
				// Over-committed host: the counter is right, the matches are not.
				continue
			}
			if _, err := t.ledger.Recompute(ctx, d.HostID); err != nil {
				return err
			}
			repaired = append(repaired, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, d := range repaired {
		s.logger.Warn("capacity counter repaired", "host_id", d.HostID, "from", d.Counter, "to", d.Recomputed)
	}
	return repaired, nil
}

func hostIDs(ctx context.Context, t *txn) ([]string, error) {
	hosts, err := t.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hosts))
	for i, h := range hosts {
		ids[i] = h.ID
	}
	return ids, nil
}

// HostCapacity is one host's seat usage.
type HostCapacity struct {
	HostID    string `json:"host_id"`
	Name      string `json:"name"`
	Seats     int    `json:"seats_available"`
	Remaining int    `json:"remaining_capacity"`
}

// Dashboard summarizes the event for organizers.
type Dashboard struct {
	TotalGuests         int                   `json:"total_guests"`
	TotalHosts          int                   `json:"total_hosts"`
	GuestsPlaced        int                   `json:"guests_placed"`
	ByStatus            map[domain.Status]int `json:"matches_by_status"`
	PendingDecisions    int                   `json:"pending_decisions"`
	AwaitingFinalize    int                   `json:"awaiting_finalization"`
	Confirmed           int                   `json:"confirmed"`
	AttendanceConfirmed int                   `json:"attendance_confirmed"`
	TotalSeats          int                   `json:"total_seats"`
	RemainingSeats      int                   `json:"remaining_seats"`
	FailedNotifications int                   `json:"failed_notifications"`

	// UnqueuedNotifications counts messages that could not be queued at
	// all, so they never show up as failed deliveries.
	UnqueuedNotifications int `json:"unqueued_notifications"`

	// HostsWithRoom lists hosts that still have unused seats.
	HostsWithRoom []HostCapacity `json:"hosts_with_capacity"`

	// UnmatchedStrictKosher lists unplaced guests who accept only fully
	// kosher hosts, the hardest guests to place.
	UnmatchedStrictKosher []string `json:"unmatched_strict_kosher"`
}

// Dashboard computes the organizer overview from a consistent snapshot.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	d := Dashboard{
		ByStatus:              map[domain.Status]int{},
		HostsWithRoom:         []HostCapacity{},
		UnmatchedStrictKosher: []string{},
	}
	_, err := s.withTx(ctx, func(t *txn) error {
		guests, err := t.ListGuests(ctx)
		if err != nil {
			return err
		}
		hosts, err := t.ListHosts(ctx)
		if err != nil {
			return err
		}
		matches, err := t.ListMatches(ctx, store.MatchFilter{})
		if err != nil {
			return err
		}
		unplaced, err := t.UnplacedGuests(ctx)
		if err != nil {
			return err
		}
		failed, err := t.ListNotifications(ctx, store.NotificationFilter{Status: domain.DeliveryFailed})
		if err != nil {
			return err
		}

		d.TotalGuests = len(guests)
		d.TotalHosts = len(hosts)
		d.GuestsPlaced = len(guests) - len(unplaced)
		d.FailedNotifications = len(failed)
		if d.UnqueuedNotifications, err = t.CountActivity(ctx, domain.ActivityNotifyFailed); err != nil {
			return err
		}
		for _, m := range matches {
			d.ByStatus[m.Status]++
			if m.Status == domain.StatusConfirmed && m.AttendanceConfirmedAt != nil {
				d.AttendanceConfirmed++
			}
		}
		d.PendingDecisions = d.ByStatus[domain.StatusRequested]
		d.AwaitingFinalize = d.ByStatus[domain.StatusAccepted]
		d.Confirmed = d.ByStatus[domain.StatusConfirmed]

		for _, h := range hosts {
			rem, err := t.ledger.Remaining(ctx, h.ID)
			if err != nil {
				return err
			}
			d.TotalSeats += h.Seats
			d.RemainingSeats += rem
			if rem > 0 {
				d.HostsWithRoom = append(d.HostsWithRoom, HostCapacity{
					HostID: h.ID, Name: h.Name, Seats: h.Seats, Remaining: rem,
				})
			}
		}
		for _, g := range unplaced {
			if g.Kosher.Strict() {
				d.UnmatchedStrictKosher = append(d.UnmatchedStrictKosher, g.ID)
			}
		}
		return nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
