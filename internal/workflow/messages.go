package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/token"
)

// SendReminder sends the day-of reminder for a confirmed match. Each call
// mints a fresh attendance_confirm token.
func (s *Service) SendReminder(ctx context.Context, matchID string) (Result, error) {
	var m domain.Match
	warnings, err := s.withTx(ctx, func(t *txn) error {
		var err error
		if m, err = t.GetMatch(ctx, matchID); err != nil {
			return err
		}
		if m.Status != domain.StatusConfirmed {
			return domain.TransitionError(m.ID, m.Status, "send a reminder for")
		}
		g, err := t.GetGuest(ctx, m.GuestID)
		if err != nil {
			return err
		}
		h, err := t.GetHost(ctx, m.HostID)
		if err != nil {
			return err
		}
		raw, _, err := s.tokens.Issue(ctx, t, domain.PurposeAttendanceConfirm, token.Subject{MatchID: m.ID})
		if err != nil {
			return err
		}
		s.enqueue(ctx, t, message{
			template: domain.TemplateReminderGuest,
			to:       g.Email,
			subject:  m.ID,
			data: map[string]string{
				"guest_name":        g.Name,
				"host_name":         h.Name,
				"host_neighborhood": h.Neighborhood,
				"party_size":        strconv.Itoa(m.PartySize),
			},
			rawToken: raw,
			matchID:  m.ID,
			hostID:   h.ID,
		})
		return s.record(ctx, t, domain.ActivityReminderSent, domain.ActorAdmin, "match", m.ID,
			map[string]string{"guest_id": m.GuestID})
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Match: m, Warnings: warnings}, nil
}

// HostResult is the outcome of a host-scoped message.
type HostResult struct {
	HostID string `json:"host_id"`

	// Guests counts the confirmed matches the message covers.
	Guests   int      `json:"guests"`
	Warnings []string `json:"warnings,omitempty"`
}

// SendHostSummary sends a host the list of their confirmed guests. At most
// one summary per host per day is queued.
func (s *Service) SendHostSummary(ctx context.Context, hostID string) (HostResult, error) {
	res := HostResult{HostID: hostID}
	warnings, err := s.withTx(ctx, func(t *txn) error {
		h, confirmed, err := s.confirmedFor(ctx, t, hostID)
		if err != nil {
			return err
		}
		var lines []string
		seats := 0
		for _, m := range confirmed {
			g, err := t.GetGuest(ctx, m.GuestID)
			if err != nil {
				return err
			}
			seats += m.PartySize
			lines = append(lines, fmt.Sprintf("%s (party of %d, %s)", g.Name, m.PartySize, g.Kosher))
		}
		res.Guests = len(confirmed)

		s.enqueue(ctx, t, message{
			template: domain.TemplateSummaryHost,
			to:       h.Email,
			subject:  h.ID,
			data: merge(hostData(h), map[string]string{
				"guest_count": strconv.Itoa(len(confirmed)),
				"total_seats": strconv.Itoa(seats),
				"guest_list":  strings.Join(lines, "\n"),
			}),
			hostID: h.ID,
			key:    s.clock.Now().Format("2006-01-02"),
		})
		return s.record(ctx, t, domain.ActivityHostSummarySent, domain.ActorAdmin, "host", h.ID,
			map[string]string{"guest_count": strconv.Itoa(len(confirmed))})
	})
	if err != nil {
		return HostResult{}, err
	}
	res.Warnings = warnings
	return res, nil
}

// SendNoShowRequest asks a host to report which confirmed guests did not
// come. The token it mints covers every confirmed match of the host.
func (s *Service) SendNoShowRequest(ctx context.Context, hostID string) (HostResult, error) {
	res := HostResult{HostID: hostID}
	warnings, err := s.withTx(ctx, func(t *txn) error {
		h, confirmed, err := s.confirmedFor(ctx, t, hostID)
		if err != nil {
			return err
		}
		res.Guests = len(confirmed)
		raw, _, err := s.tokens.Issue(ctx, t, domain.PurposeNoShowReport, token.Subject{HostID: h.ID})
		if err != nil {
			return err
		}
		s.enqueue(ctx, t, message{
			template: domain.TemplateNoShowRequest,
			to:       h.Email,
			subject:  h.ID,
			data: map[string]string{
				"host_name":   h.Name,
				"guest_count": strconv.Itoa(len(confirmed)),
				"expires_in":  s.ttls.NoShowReport.String(),
			},
			rawToken: raw,
			hostID:   h.ID,
		})
		return s.record(ctx, t, domain.ActivityNoShowRequestSent, domain.ActorAdmin, "host", h.ID,
			map[string]string{"guest_count": strconv.Itoa(len(confirmed))})
	})
	if err != nil {
		return HostResult{}, err
	}
	res.Warnings = warnings
	return res, nil
}

func (s *Service) confirmedFor(ctx context.Context, t *txn, hostID string) (domain.Host, []domain.Match, error) {
	h, err := t.GetHost(ctx, hostID)
	if err != nil {
		return domain.Host{}, nil, err
	}
	confirmed, err := t.ListMatches(ctx, store.MatchFilter{
		HostID:   hostID,
		Statuses: []domain.Status{domain.StatusConfirmed},
	})
	if err != nil {
		return domain.Host{}, nil, err
	}
	if len(confirmed) == 0 {
		return domain.Host{}, nil, domain.Validationf("host %s has no confirmed guests", hostID)
	}
	return h, confirmed, nil
}
