package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/token"
)

// message is a notification about to be queued.
type message struct {
	template domain.Template
	to       string
	subject  string
	data     map[string]string
	rawToken string
	matchID  string
	hostID   string

	// key overrides the dedupe key suffix after template and subject.
	key string
}

// dedupeKey identifies a message so a retried operation never queues it
// twice. Link-bearing messages are keyed by their token, so every fresh
// token gets its own message.
func (m message) dedupeKey() string {
	switch {
	case m.key != "":
		return fmt.Sprintf("%s:%s:%s", m.template, m.subject, m.key)
	case m.rawToken != "":
		return fmt.Sprintf("%s:%s:%s", m.template, m.subject, token.Digest(m.rawToken)[:16])
	default:
		return fmt.Sprintf("%s:%s:%s", m.template, m.subject, m.to)
	}
}

// enqueue queues m inside a savepoint. Failure is logged and collected as
// a warning on t; the enclosing transition still commits.
func (s *Service) enqueue(ctx context.Context, t *txn, m message) {
	n := domain.Notification{
		DedupeKey:   m.dedupeKey(),
		Template:    m.template,
		To:          m.to,
		Data:        m.data,
		ActionToken: m.rawToken,
		MatchID:     m.matchID,
		HostID:      m.hostID,
		Status:      domain.DeliveryQueued,
		CreatedAt:   s.clock.Now(),
	}
	err := t.Savepoint(ctx, "outbox", func() error {
		inserted, err := t.EnqueueNotification(ctx, n)
		if err != nil {
			return err
		}
		if !inserted {
			s.logger.Debug("notification already queued", "dedupe_key", n.DedupeKey)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("enqueue notification failed",
			"template", m.template, "to", m.to, "match_id", m.matchID, "host_id", m.hostID, "error", err)
		t.warnings = append(t.warnings, fmt.Sprintf("%s notification to %q not queued: %v", m.template, m.to, err))
		s.recordUnqueued(ctx, t, m, err)
	}
}

// recordUnqueued leaves an audit entry for a message that never reached
// the outbox, so organizers see it even when only a host got the warning.
func (s *Service) recordUnqueued(ctx context.Context, t *txn, m message, cause error) {
	targetType, targetID := "match", m.matchID
	if targetID == "" {
		targetType, targetID = "host", m.hostID
	}
	details := map[string]string{
		"template": string(m.template),
		"to":       m.to,
		"error":    cause.Error(),
	}
	if err := s.record(ctx, t, domain.ActivityNotifyFailed, domain.ActorSystem, targetType, targetID, details); err != nil {
		s.logger.Error("record unqueued notification failed", "template", m.template, "error", err)
	}
}

func guestData(g domain.Guest) map[string]string {
	return map[string]string{
		"guest_name":         g.Name,
		"guest_email":        g.Email,
		"guest_phone":        g.Phone,
		"party_size":         strconv.Itoa(g.PartySize),
		"guest_kosher":       string(g.Kosher),
		"guest_neighborhood": g.Neighborhood,
	}
}

func hostData(h domain.Host) map[string]string {
	return map[string]string{
		"host_name":         h.Name,
		"host_email":        h.Email,
		"host_phone":        h.Phone,
		"host_address":      h.Address,
		"host_neighborhood": h.Neighborhood,
	}
}

func merge(maps ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
