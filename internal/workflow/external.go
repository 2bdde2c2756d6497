package workflow

import (
	"context"
	"strconv"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/token"
)

// Response is what a host sees after following a request link.
type Response struct {
	MatchID string        `json:"match_id"`
	Status  domain.Status `json:"status"`

	// Outcome is the recorded result, prefixed "already_" on replay.
	Outcome  string   `json:"outcome"`
	Replay   bool     `json:"replay"`
	Warnings []string `json:"warnings,omitempty"`
}

// Respond applies a host's accept or decline. Presenting a consumed token
// again, with either action, replays the first outcome. An expired token
// declines the match, releases its seats and returns TOKEN_EXPIRED.
func (s *Service) Respond(ctx context.Context, raw string, action string) (Response, error) {
	act, err := domain.ParseAction(action)
	if err != nil {
		return Response{}, err
	}

	var (
		res     Response
		expired bool
	)
	warnings, err := s.withTx(ctx, func(t *txn) error {
		red, err := s.tokens.Redeem(ctx, t, raw, domain.PurposeHostResponse)
		switch {
		case domain.IsTokenExpired(err):
			expired = true
			m, err := s.expire(ctx, t, red.Token)
			if err != nil {
				return err
			}
			res = Response{MatchID: m.ID, Status: m.Status, Outcome: string(domain.OutcomeExpired)}
			return nil
		case err != nil:
			return err
		}

		m, err := t.GetMatch(ctx, red.Token.MatchID)
		if err != nil {
			return err
		}
		if red.Replay {
			res = replayResponse(m, red.Token.Outcome)
			return nil
		}
		if !domain.CanTransition(m.Status, domain.StatusAccepted) {
			return domain.TransitionError(m.ID, m.Status, "respond to")
		}

		outcome := domain.OutcomeAccepted
		if act == domain.ActionDecline {
			outcome = domain.OutcomeDeclined
		}
		ok, err := s.tokens.Consume(ctx, t, red.Token, outcome)
		if err != nil {
			return err
		}
		if !ok {
			tok, err := t.GetToken(ctx, red.Token.Digest)
			if err != nil {
				return err
			}
			res = replayResponse(m, tok.Outcome)
			return nil
		}

		at := s.clock.Now()
		m.RespondedAt = &at
		switch act {
		case domain.ActionAccept:
			if err := s.transition(ctx, t, &m, domain.StatusAccepted); err != nil {
				return err
			}
			if err := s.notifyAdmin(ctx, t, domain.TemplateAwaitingFinalize, m); err != nil {
				return err
			}
			if err := s.record(ctx, t, domain.ActivityMatchAccepted, domain.ActorHost, "match", m.ID,
				map[string]string{"host_id": m.HostID}); err != nil {
				return err
			}
		case domain.ActionDecline:
			if err := s.decline(ctx, t, &m, domain.ActivityMatchDeclined, domain.ActorHost); err != nil {
				return err
			}
		}
		res = Response{MatchID: m.ID, Status: m.Status, Outcome: string(outcome)}
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	res.Warnings = warnings
	if expired {
		return res, domain.TokenExpired()
	}
	return res, nil
}

func replayResponse(m domain.Match, outcome domain.Outcome) Response {
	return Response{MatchID: m.ID, Status: m.Status, Outcome: outcome.Already(), Replay: true}
}

// decline moves a requested match to declined, releasing its seats and
// telling the organizers.
func (s *Service) decline(ctx context.Context, t *txn, m *domain.Match, kind, actor string) error {
	if err := s.releaseIfHeld(ctx, t, *m); err != nil {
		return err
	}
	if err := s.transition(ctx, t, m, domain.StatusDeclined); err != nil {
		return err
	}
	if err := s.notifyAdmin(ctx, t, domain.TemplateDeclinedAdmin, *m); err != nil {
		return err
	}
	return s.record(ctx, t, kind, actor, "match", m.ID, map[string]string{"host_id": m.HostID})
}

// expire records the lapse of an unanswered host_response token. The
// match, if still awaiting an answer, is declined.
func (s *Service) expire(ctx context.Context, t *txn, tok domain.ActionToken) (domain.Match, error) {
	ok, err := s.tokens.Consume(ctx, t, tok, domain.OutcomeExpired)
	if err != nil {
		return domain.Match{}, err
	}
	m, err := t.GetMatch(ctx, tok.MatchID)
	if err != nil {
		return domain.Match{}, err
	}
	if !ok || !domain.CanTransition(m.Status, domain.StatusDeclined) {
		return m, nil
	}
	if err := s.decline(ctx, t, &m, domain.ActivityMatchExpired, domain.ActorSystem); err != nil {
		return domain.Match{}, err
	}
	return m, nil
}

func (s *Service) notifyAdmin(ctx context.Context, t *txn, tmpl domain.Template, m domain.Match) error {
	g, err := t.GetGuest(ctx, m.GuestID)
	if err != nil {
		return err
	}
	h, err := t.GetHost(ctx, m.HostID)
	if err != nil {
		return err
	}
	s.enqueue(ctx, t, message{
		template: tmpl,
		to:       s.adminEmail,
		subject:  m.ID,
		data: map[string]string{
			"match_id":   m.ID,
			"guest_name": g.Name,
			"host_name":  h.Name,
			"status":     string(m.Status),
		},
		matchID: m.ID,
		hostID:  m.HostID,
	})
	return nil
}

// Attendance is what a guest sees after confirming they will come.
type Attendance struct {
	MatchID     string `json:"match_id"`
	HostName    string `json:"host_name"`
	HostAddress string `json:"host_address"`
	HostPhone   string `json:"host_phone"`
	Outcome     string `json:"outcome"`
	Replay      bool   `json:"replay"`
}

// ConfirmAttendance records that the guest will attend and hands back the
// host's contact details. The match status does not change.
func (s *Service) ConfirmAttendance(ctx context.Context, raw string) (Attendance, error) {
	var res Attendance
	_, err := s.withTx(ctx, func(t *txn) error {
		red, err := s.tokens.Redeem(ctx, t, raw, domain.PurposeAttendanceConfirm)
		if err != nil {
			return err
		}
		m, err := t.GetMatch(ctx, red.Token.MatchID)
		if err != nil {
			return err
		}
		h, err := t.GetHost(ctx, m.HostID)
		if err != nil {
			return err
		}
		res = Attendance{MatchID: m.ID, HostName: h.Name, HostAddress: h.Address, HostPhone: h.Phone}

		if red.Replay {
			res.Outcome = red.Token.Outcome.Already()
			res.Replay = true
			return nil
		}
		if m.Status != domain.StatusConfirmed {
			return domain.TransitionError(m.ID, m.Status, "confirm attendance for")
		}
		if ok, err := s.tokens.Consume(ctx, t, red.Token, domain.OutcomeConfirmed); err != nil {
			return err
		} else if !ok {
			res.Outcome = domain.OutcomeConfirmed.Already()
			res.Replay = true
			return nil
		}

		if m.AttendanceConfirmedAt == nil {
			at := s.clock.Now()
			m.AttendanceConfirmedAt = &at
			m.UpdatedAt = at
			if err := t.UpdateMatch(ctx, m); err != nil {
				return err
			}
		}
		res.Outcome = string(domain.OutcomeConfirmed)
		s.logger.Info("attendance confirmed", "match_id", m.ID, "guest_id", m.GuestID)
		return s.record(ctx, t, domain.ActivityAttendanceConfirm, domain.ActorGuest, "match", m.ID,
			map[string]string{"guest_id": m.GuestID})
	})
	if err != nil {
		return Attendance{}, err
	}
	return res, nil
}

// NoShowGuest is one line of the no-show form.
type NoShowGuest struct {
	MatchID   string `json:"match_id"`
	GuestID   string `json:"guest_id"`
	GuestName string `json:"guest_name"`
	PartySize int    `json:"party_size"`
}

// NoShowForm lists the guests a host can report.
type NoShowForm struct {
	HostID    string        `json:"host_id"`
	HostName  string        `json:"host_name"`
	Guests    []NoShowGuest `json:"guests"`
	Submitted bool          `json:"submitted"`

	// Reported is the count recorded by the earlier submission.
	Reported int `json:"reported_count,omitempty"`
}

// GetNoShowForm lists the host's confirmed matches whose guest confirmed
// attendance and which have not been reported yet. It does not consume
// the token.
func (s *Service) GetNoShowForm(ctx context.Context, raw string) (NoShowForm, error) {
	var form NoShowForm
	_, err := s.withTx(ctx, func(t *txn) error {
		red, err := s.tokens.Redeem(ctx, t, raw, domain.PurposeNoShowReport)
		if err != nil {
			return err
		}
		h, err := t.GetHost(ctx, red.Token.HostID)
		if err != nil {
			return err
		}
		form = NoShowForm{HostID: h.ID, HostName: h.Name, Guests: []NoShowGuest{}}
		if red.Replay {
			form.Submitted = true
			form.Reported, _ = red.Token.Outcome.ReportedCount()
			return nil
		}

		confirmed, err := t.ListMatches(ctx, store.MatchFilter{
			HostID:   h.ID,
			Statuses: []domain.Status{domain.StatusConfirmed},
		})
		if err != nil {
			return err
		}
		for _, m := range confirmed {
			if m.AttendanceConfirmedAt == nil || m.NoShowReportedAt != nil {
				continue
			}
			g, err := t.GetGuest(ctx, m.GuestID)
			if err != nil {
				return err
			}
			form.Guests = append(form.Guests, NoShowGuest{
				MatchID: m.ID, GuestID: g.ID, GuestName: g.Name, PartySize: m.PartySize,
			})
		}
		return nil
	})
	if err != nil {
		return NoShowForm{}, err
	}
	return form, nil
}

// NoShowReport is the outcome of a no-show submission.
type NoShowReport struct {
	HostID   string `json:"host_id"`
	Reported int    `json:"reported_count"`

	// Skipped lists submitted match ids that were not the host's, not
	// confirmed, or already reported.
	Skipped []string `json:"skipped,omitempty"`
	Replay  bool     `json:"replay"`
}

// SubmitNoShowReport marks the named matches as no-shows and increments
// each guest's no-show count. The token is consumed even when nothing is
// reported, so a host can file "everyone came" exactly once.
func (s *Service) SubmitNoShowReport(ctx context.Context, raw string, matchIDs []string) (NoShowReport, error) {
	var res NoShowReport
	_, err := s.withTx(ctx, func(t *txn) error {
		red, err := s.tokens.Redeem(ctx, t, raw, domain.PurposeNoShowReport)
		if err != nil {
			return err
		}
		res = NoShowReport{HostID: red.Token.HostID}
		if red.Replay {
			res.Reported, _ = red.Token.Outcome.ReportedCount()
			res.Replay = true
			return nil
		}

		seen := map[string]bool{}
		var report []domain.Match
		for _, id := range matchIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			m, err := t.GetMatch(ctx, id)
			if domain.IsNotFound(err) {
				res.Skipped = append(res.Skipped, id)
				continue
			}
			if err != nil {
				return err
			}
			if m.HostID != red.Token.HostID || m.Status != domain.StatusConfirmed || m.NoShowReportedAt != nil {
				res.Skipped = append(res.Skipped, id)
				continue
			}
			report = append(report, m)
		}

		if ok, err := s.tokens.Consume(ctx, t, red.Token, domain.OutcomeReported(len(report))); err != nil {
			return err
		} else if !ok {
			tok, err := t.GetToken(ctx, red.Token.Digest)
			if err != nil {
				return err
			}
			res = NoShowReport{HostID: tok.HostID, Replay: true}
			res.Reported, _ = tok.Outcome.ReportedCount()
			return nil
		}

		at := s.clock.Now()
		for _, m := range report {
			count, err := t.IncrementNoShow(ctx, m.GuestID)
			if err != nil {
				return err
			}
			m.NoShow = true
			m.NoShowReportedAt = &at
			m.UpdatedAt = at
			if err := t.UpdateMatch(ctx, m); err != nil {
				return err
			}
			s.logger.Info("no-show reported", "match_id", m.ID, "guest_id", m.GuestID, "no_show_count", count)
			if err := s.record(ctx, t, domain.ActivityNoShowReported, domain.ActorHost, "guest", m.GuestID,
				map[string]string{"match_id": m.ID, "no_show_count": strconv.Itoa(count)}); err != nil {
				return err
			}
		}
		res.Reported = len(report)
		return nil
	})
	if err != nil {
		return NoShowReport{}, err
	}
	return res, nil
}

var _ token.Repository = (*txn)(nil)
