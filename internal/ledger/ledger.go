// Package ledger tracks committed seats per host.
//
// Every transition that adds or removes a host's committed seats goes
// through a Ledger bound to the same store transaction as the match
// update, so the running counter and the matches table move together.
// Remaining seats are always seats_available minus the counter, and
// Verify recomputes the counter from the matches table to prove the two
// never drift.
package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/dinnermatch/internal/domain"
)

// Policy decides which match statuses hold seats.
type Policy string

const (
	// PolicyProposal reserves seats as soon as a match is proposed.
	PolicyProposal Policy = "proposal"

	// PolicyRequest reserves seats only once a request is sent.
	PolicyRequest Policy = "request"
)

// ParsePolicy validates a policy name.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(raw); p {
	case PolicyProposal, PolicyRequest:
		return p, nil
	}
	return "", domain.Validationf("unknown reservation policy %q", raw)
}

// Committed reports whether a match in status s holds seats.
func (p Policy) Committed(s domain.Status) bool {
	switch s {
	case domain.StatusRequested, domain.StatusAccepted, domain.StatusConfirmed:
		return true
	case domain.StatusProposed:
		return p != PolicyRequest
	case domain.StatusDeclined:
		return false
	}
	return false
}

// Statuses lists the statuses that hold seats under p.
func (p Policy) Statuses() []domain.Status {
	var out []domain.Status
	for _, s := range domain.AllStatuses {
		if p.Committed(s) {
			out = append(out, s)
		}
	}
	return out
}

// Backend is the storage the ledger reads and writes. The store's
// transaction type implements it.
type Backend interface {
	// Seats returns the host's seats_available.
	Seats(ctx context.Context, hostID string) (int, error)

	// Committed returns the running committed counter.
	Committed(ctx context.Context, hostID string) (int, error)

	// SetCommitted overwrites the running committed counter.
	SetCommitted(ctx context.Context, hostID string, seats int) error

	// SumPartySize totals party_size over the host's matches in statuses.
	SumPartySize(ctx context.Context, hostID string, statuses []domain.Status) (int, error)
}

// Ledger applies reservations against a Backend.
type Ledger struct {
	backend Backend
	policy  Policy
}

// New binds a ledger to a backend. Call it once per transaction.
func New(b Backend, p Policy) *Ledger {
	if p == "" {
		p = PolicyProposal
	}
	return &Ledger{backend: b, policy: p}
}

// Policy returns the reservation policy in force.
func (l *Ledger) Policy() Policy { return l.policy }

// Remaining returns the seats the host has not committed.
func (l *Ledger) Remaining(ctx context.Context, hostID string) (int, error) {
	seats, err := l.backend.Seats(ctx, hostID)
	if err != nil {
		return 0, err
	}
	committed, err := l.backend.Committed(ctx, hostID)
	if err != nil {
		return 0, err
	}
	return seats - committed, nil
}

// Reserve commits seats on a host or fails with a capacity conflict
// before anything is written.
func (l *Ledger) Reserve(ctx context.Context, hostID string, seats int) error {
	if seats < 1 {
		return domain.Validationf("reserve: seats must be positive, got %d", seats)
	}
	total, err := l.backend.Seats(ctx, hostID)
	if err != nil {
		return err
	}
	committed, err := l.backend.Committed(ctx, hostID)
	if err != nil {
		return err
	}
	if committed+seats > total {
		return domain.CapacityConflict(hostID, seats, total-committed)
	}
	if err := l.backend.SetCommitted(ctx, hostID, committed+seats); err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	return nil
}

// Release returns seats to a host. Releasing more than is committed is a
// bookkeeping bug and fails without writing.
func (l *Ledger) Release(ctx context.Context, hostID string, seats int) error {
	if seats < 1 {
		return domain.Validationf("release: seats must be positive, got %d", seats)
	}
	committed, err := l.backend.Committed(ctx, hostID)
	if err != nil {
		return err
	}
	if seats > committed {
		return fmt.Errorf("release: host %s has %d committed, cannot release %d", hostID, committed, seats)
	}
	if err := l.backend.SetCommitted(ctx, hostID, committed-seats); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

// Transfer moves a party from one host to another. The new host is
// reserved first so a conflict leaves the old reservation intact.
func (l *Ledger) Transfer(ctx context.Context, fromHost, toHost string, seats int) error {
	if fromHost == toHost {
		return nil
	}
	if err := l.Reserve(ctx, toHost, seats); err != nil {
		return err
	}
	return l.Release(ctx, fromHost, seats)
}

// Drift describes a host whose counter disagrees with its matches.
type Drift struct {
	HostID     string `json:"host_id"`
	Seats      int    `json:"seats_available"`
	Counter    int    `json:"counter"`
	Recomputed int    `json:"recomputed"`
}

// Remaining is seats minus the recomputed commitment.
func (d Drift) Remaining() int { return d.Seats - d.Recomputed }

// Check recomputes one host's commitment from its matches and reports
// whether the running counter agrees.
func (l *Ledger) Check(ctx context.Context, hostID string) (Drift, bool, error) {
	seats, err := l.backend.Seats(ctx, hostID)
	if err != nil {
		return Drift{}, false, err
	}
	counter, err := l.backend.Committed(ctx, hostID)
	if err != nil {
		return Drift{}, false, err
	}
	sum, err := l.backend.SumPartySize(ctx, hostID, l.policy.Statuses())
	if err != nil {
		return Drift{}, false, err
	}
	d := Drift{HostID: hostID, Seats: seats, Counter: counter, Recomputed: sum}
	return d, counter == sum && sum <= seats, nil
}

// Verify checks every host and returns the ones that drifted.
func (l *Ledger) Verify(ctx context.Context, hostIDs []string) ([]Drift, error) {
	drifts := []Drift{}
	for _, id := range hostIDs {
		d, ok, err := l.Check(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			drifts = append(drifts, d)
		}
	}
	return drifts, nil
}

// Recompute resets a host's counter from its matches. Used after a
// policy change and by the repair command.
func (l *Ledger) Recompute(ctx context.Context, hostID string) (int, error) {
	sum, err := l.backend.SumPartySize(ctx, hostID, l.policy.Statuses())
	if err != nil {
		return 0, err
	}
	if err := l.backend.SetCommitted(ctx, hostID, sum); err != nil {
		return 0, fmt.Errorf("recompute: %w", err)
	}
	return sum, nil
}
