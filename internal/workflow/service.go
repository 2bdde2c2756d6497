// Package workflow owns the lifecycle of a Match.
//
// Every operation runs in one store transaction: the match update, its
// ledger change, any token mint or consumption, and the activity entry
// commit together. Notifications are queued in the same transaction under
// a savepoint, so a failed enqueue is reported as a warning and never
// rolls back the transition.
//
// State machine:
//
//	proposed  -> requested   SendRequest (mints host_response token)
//	requested -> accepted    Respond(accept)
//	requested -> declined    Respond(decline), token expiry, SweepExpired
//	accepted  -> confirmed   Finalize
//	proposed  -> (deleted)   Delete
//	proposed|requested       Edit reassigns the host, status unchanged
//
// confirmed is terminal. Attendance confirmation and no-show reports set
// flags on a confirmed match without changing its status.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/dinnermatch/internal/allocation"
	"github.com/roach88/dinnermatch/internal/clock"
	"github.com/roach88/dinnermatch/internal/domain"
	"github.com/roach88/dinnermatch/internal/ledger"
	"github.com/roach88/dinnermatch/internal/scoring"
	"github.com/roach88/dinnermatch/internal/store"
	"github.com/roach88/dinnermatch/internal/token"
)

// DefaultAdminEmail receives organizer notifications when none is configured.
const DefaultAdminEmail = "admin@localhost"

// Service runs workflow operations against a store.
//
// Thread-safety: Service is safe for concurrent use. The store serializes
// transactions, so two operations on the same match or host never
// interleave.
type Service struct {
	store      *store.Store
	clock      clock.Clock
	ids        clock.IDGenerator
	tokens     *token.Service
	ttls       token.TTLs
	scorer     *scoring.Scorer
	allocOpts  allocation.Options
	policy     ledger.Policy
	adminEmail string
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDs sets the match id generator.
func WithIDs(g clock.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPolicy sets the reservation policy.
func WithPolicy(p ledger.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithWeights sets the scorer weights used by generation and Edit.
func WithWeights(w scoring.Weights) Option {
	return func(s *Service) { s.scorer = scoring.New(w) }
}

// WithAllocation sets the allocation options used by GenerateMatches.
func WithAllocation(o allocation.Options) Option {
	return func(s *Service) { s.allocOpts = o }
}

// WithTTLs sets the token lifetimes.
func WithTTLs(t token.TTLs) Option {
	return func(s *Service) { s.ttls = t }
}

// WithAdminEmail sets the organizer address for admin notifications.
func WithAdminEmail(addr string) Option {
	return func(s *Service) { s.adminEmail = addr }
}

// New creates a Service over st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		clock:      clock.Real{},
		ids:        clock.UUIDv7Generator{},
		ttls:       token.DefaultTTLs(),
		scorer:     scoring.New(scoring.DefaultWeights()),
		allocOpts:  allocation.DefaultOptions(),
		policy:     ledger.PolicyProposal,
		adminEmail: DefaultAdminEmail,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tokens = token.NewService(s.clock, s.ttls)
	return s
}

// Policy returns the reservation policy in force.
func (s *Service) Policy() ledger.Policy { return s.policy }

// Result is the outcome of an admin transition.
type Result struct {
	Match domain.Match `json:"match"`

	// Warnings lists notifications that could not be queued. The
	// transition itself committed.
	Warnings []string `json:"warnings,omitempty"`
}

// txn carries per-transaction state through a workflow operation.
type txn struct {
	*store.Tx
	ledger   *ledger.Ledger
	warnings []string
}

func (s *Service) withTx(ctx context.Context, fn func(t *txn) error) ([]string, error) {
	var warnings []string
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		t := &txn{Tx: tx, ledger: ledger.New(tx, s.policy)}
		if err := fn(t); err != nil {
			return err
		}
		warnings = t.warnings
		return nil
	})
	return warnings, err
}

// transition moves m to status to, stamping the update time.
func (s *Service) transition(ctx context.Context, t *txn, m *domain.Match, to domain.Status) error {
	from := m.Status
	if !domain.CanTransition(from, to) {
		return domain.TransitionError(m.ID, from, "advance to "+string(to)+" from")
	}
	m.Status = to
	m.UpdatedAt = s.clock.Now()
	if err := t.UpdateMatch(ctx, *m); err != nil {
		return err
	}
	s.logger.Info("match transition",
		"match_id", m.ID, "host_id", m.HostID, "guest_id", m.GuestID, "from", from, "to", to)
	return nil
}

func (s *Service) record(ctx context.Context, t *txn, kind, actor, targetType, targetID string, details map[string]string) error {
	err := t.LogActivity(ctx, domain.Activity{
		Type:       kind,
		Actor:      actor,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}

// releaseIfHeld releases m's seats when its current status holds them.
func (s *Service) releaseIfHeld(ctx context.Context, t *txn, m domain.Match) error {
	if !s.policy.Committed(m.Status) {
		return nil
	}
	return t.ledger.Release(ctx, m.HostID, m.PartySize)
}

