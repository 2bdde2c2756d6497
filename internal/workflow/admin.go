package workflow

import (
	"context"
	"strings"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/token"
)

// SendRequest asks the host to accept a proposed match. It mints a
// host_response token and queues the request message carrying it.
func (s *Service) SendRequest(ctx context.Context, matchID string) (Result, error) {
	var m domain.Match
	warnings, err := s.withTx(ctx, func(t *txn) error {
		var err error
		if m, err = t.GetMatch(ctx, matchID); err != nil {
			return err
		}
		if !domain.CanTransition(m.Status, domain.StatusRequested) {
			return domain.TransitionError(m.ID, m.Status, "send a request for")
		}
		if !s.policy.Committed(domain.StatusProposed) {
			if err := t.ledger.Reserve(ctx, m.HostID, m.PartySize); err != nil {
				return err
			}
		}
		at := s.clock.Now()
		m.RequestedAt = &at
		if err := s.transition(ctx, t, &m, domain.StatusRequested); err != nil {
			return err
		}
		if err := s.request(ctx, t, m); err != nil {
			return err
		}
		return s.record(ctx, t, domain.ActivityRequestSent, domain.ActorAdmin, "match", m.ID,
			map[string]string{"host_id": m.HostID, "guest_id": m.GuestID})
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Match: m, Warnings: warnings}, nil
}

// request mints a host_response token for m and queues the request.
func (s *Service) request(ctx context.Context, t *txn, m domain.Match) error {
	g, err := t.GetGuest(ctx, m.GuestID)
	if err != nil {
		return err
	}
	h, err := t.GetHost(ctx, m.HostID)
	if err != nil {
		return err
	}
	raw, _, err := s.tokens.Issue(ctx, t, domain.PurposeHostResponse, token.Subject{MatchID: m.ID})
	if err != nil {
		return err
	}
	s.enqueue(ctx, t, message{
		template: domain.TemplateMatchRequest,
		to:       h.Email,
		subject:  m.ID,
		data: merge(guestData(g), map[string]string{
			"host_name":     h.Name,
			"why_its_a_fit": m.WhyItsAFit,
			"expires_in":    s.ttls.HostResponse.String(),
		}),
		rawToken: raw,
		matchID:  m.ID,
		hostID:   h.ID,
	})
	return nil
}

// Finalize confirms an accepted match and queues the contact exchange to
// both parties.
func (s *Service) Finalize(ctx context.Context, matchID string) (Result, error) {
	var m domain.Match
	warnings, err := s.withTx(ctx, func(t *txn) error {
		var err error
		if m, err = t.GetMatch(ctx, matchID); err != nil {
			return err
		}
		if !domain.CanTransition(m.Status, domain.StatusConfirmed) {
			return domain.TransitionError(m.ID, m.Status, "finalize")
		}
		g, err := t.GetGuest(ctx, m.GuestID)
		if err != nil {
			return err
		}
		h, err := t.GetHost(ctx, m.HostID)
		if err != nil {
			return err
		}

		at := s.clock.Now()
		m.FinalizedAt = &at
		if err := s.transition(ctx, t, &m, domain.StatusConfirmed); err != nil {
			return err
		}

		both := merge(guestData(g), hostData(h))
		s.enqueue(ctx, t, message{
			template: domain.TemplateConfirmedGuest, to: g.Email, subject: m.ID,
			data: both, matchID: m.ID, hostID: h.ID,
		})
		s.enqueue(ctx, t, message{
			template: domain.TemplateConfirmedHost, to: h.Email, subject: m.ID,
			data: both, matchID: m.ID, hostID: h.ID,
		})
		return s.record(ctx, t, domain.ActivityMatchFinalized, domain.ActorAdmin, "match", m.ID,
			map[string]string{"host_id": m.HostID, "guest_id": m.GuestID})
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Match: m, Warnings: warnings}, nil
}

// Edit reassigns a proposed or requested match to newHostID. The new host
// is reserved before the old one is released, so a capacity conflict
// leaves the match untouched. A requested match gets a fresh request to
// the new host and its old link stops working.
func (s *Service) Edit(ctx context.Context, matchID, newHostID string) (Result, error) {
	var m domain.Match
	warnings, err := s.withTx(ctx, func(t *txn) error {
		var err error
		if m, err = t.GetMatch(ctx, matchID); err != nil {
			return err
		}
		if m.Status != domain.StatusProposed && m.Status != domain.StatusRequested {
			return domain.TransitionError(m.ID, m.Status, "reassign")
		}
		if m.HostID == newHostID {
			return nil
		}
		newHost, err := t.GetHost(ctx, newHostID)
		if err != nil {
			return err
		}
		g, err := t.GetGuest(ctx, m.GuestID)
		if err != nil {
			return err
		}
		remaining, err := t.ledger.Remaining(ctx, newHostID)
		if err != nil {
			return err
		}
		if remaining < m.PartySize {
			return domain.CapacityConflict(newHostID, m.PartySize, remaining)
		}
		if s.policy.Committed(m.Status) {
			if err := t.ledger.Transfer(ctx, m.HostID, newHostID, m.PartySize); err != nil {
				return err
			}
		}

		oldHostID := m.HostID
		m.HostID = newHostID
		s.rescore(&m, g, newHost, remaining)

		if m.Status == domain.StatusRequested {
			if err := s.withdraw(ctx, t, m, oldHostID); err != nil {
				return err
			}
			at := s.clock.Now()
			m.RequestedAt = &at
		}
		m.UpdatedAt = s.clock.Now()
		if err := t.UpdateMatch(ctx, m); err != nil {
			return err
		}
		if m.Status == domain.StatusRequested {
			if err := s.request(ctx, t, m); err != nil {
				return err
			}
		}
		s.logger.Info("match reassigned",
			"match_id", m.ID, "guest_id", m.GuestID, "from_host", oldHostID, "to_host", newHostID, "status", m.Status)
		return s.record(ctx, t, domain.ActivityMatchEdited, domain.ActorAdmin, "match", m.ID,
			map[string]string{"old_host_id": oldHostID, "new_host_id": newHostID, "status": string(m.Status)})
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Match: m, Warnings: warnings}, nil
}

// rescore refreshes the score and rationale after a reassignment. An
// organizer may place a guest where the scorer would not, in which case
// the rationale names the failed constraints.
func (s *Service) rescore(m *domain.Match, g domain.Guest, h domain.Host, remaining int) {
	r := s.scorer.Score(g, h, remaining)
	if r.Eligible {
		m.Score = r.Score
		m.WhyItsAFit = r.Rationale
		return
	}
	m.Score = 0
	m.WhyItsAFit = "Placed by an organizer. " + strings.Join(r.Reasons, "; ")
	s.logger.Warn("reassigned to ineligible host", "match_id", m.ID, "host_id", h.ID, "reasons", r.Reasons)
}

// withdraw retires the old host's open request link and tells them the
// guest has moved. The notice is keyed by the retired link so each
// withdrawal gets its own message.
func (s *Service) withdraw(ctx context.Context, t *txn, m domain.Match, oldHostID string) error {
	open, err := t.OpenTokensForMatch(ctx, m.ID, domain.PurposeHostResponse)
	if err != nil {
		return err
	}
	key := oldHostID
	for _, tok := range open {
		if _, err := s.tokens.Consume(ctx, t, tok, domain.OutcomeReassigned); err != nil {
			return err
		}
		key = oldHostID + ":" + tok.Digest[:16]
	}
	old, err := t.GetHost(ctx, oldHostID)
	if err != nil {
		return err
	}
	g, err := t.GetGuest(ctx, m.GuestID)
	if err != nil {
		return err
	}
	s.enqueue(ctx, t, message{
		template: domain.TemplateReassignedOldHost,
		to:       old.Email,
		subject:  m.ID,
		data:     merge(hostData(old), map[string]string{"guest_name": g.Name}),
		matchID:  m.ID,
		hostID:   old.ID,
		key:      key,
	})
	return nil
}

// Delete removes a proposed match and releases any seats it held. Later
// statuses must be declined instead so their history survives.
func (s *Service) Delete(ctx context.Context, matchID string) (Result, error) {
	var m domain.Match
	warnings, err := s.withTx(ctx, func(t *txn) error {
		var err error
		if m, err = t.GetMatch(ctx, matchID); err != nil {
			return err
		}
		if m.Status != domain.StatusProposed {
			return domain.TransitionError(m.ID, m.Status, "delete")
		}
		if err := s.releaseIfHeld(ctx, t, m); err != nil {
			return err
		}
		if err := t.DeleteMatch(ctx, m.ID); err != nil {
			return err
		}
		s.logger.Info("match deleted", "match_id", m.ID, "host_id", m.HostID, "guest_id", m.GuestID)
		return s.record(ctx, t, domain.ActivityMatchRemoved, domain.ActorAdmin, "match", m.ID,
			map[string]string{"host_id": m.HostID, "guest_id": m.GuestID})
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Match: m, Warnings: warnings}, nil
}

// FlagGuest marks a guest for organizer attention. Flagging never counts
// as a no-show; only a host's report does that.
func (s *Service) FlagGuest(ctx context.Context, guestID, reason string) (domain.Guest, error) {
	if reason == "" {
		reason = "Manual flag by admin"
	}
	var g domain.Guest
	_, err := s.withTx(ctx, func(t *txn) error {
		if err := t.FlagGuest(ctx, guestID, s.clock.Now()); err != nil {
			return err
		}
		var err error
		if g, err = t.GetGuest(ctx, guestID); err != nil {
			return err
		}
		s.logger.Info("guest flagged", "guest_id", g.ID, "no_show_count", g.NoShowCount)
		return s.record(ctx, t, domain.ActivityGuestFlagged, domain.ActorAdmin, "guest", g.ID,
			map[string]string{"reason": reason})
	})
	if err != nil {
		return domain.Guest{}, err
	}
	return g, nil
}
