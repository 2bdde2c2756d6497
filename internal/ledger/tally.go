package ledger

import "github.com/roach88/dinnermatch/internal/domain"

// Tally is an in-memory ledger for a single allocation run. It starts
// from each host's remaining seats and is discarded when the run ends.
type Tally struct {
	remaining map[string]int
}

// NewTally seeds a tally from host id to remaining seats.
func NewTally(remaining map[string]int) *Tally {
	m := make(map[string]int, len(remaining))
	for k, v := range remaining {
		m[k] = v
	}
	return &Tally{remaining: m}
}

// Remaining returns the seats left on a host in this run.
func (t *Tally) Remaining(hostID string) int { return t.remaining[hostID] }

// Reserve takes seats from a host for the rest of the run.
func (t *Tally) Reserve(hostID string, seats int) error {
	left := t.remaining[hostID]
	if seats > left {
		return domain.CapacityConflict(hostID, seats, left)
	}
	t.remaining[hostID] = left - seats
	return nil
}

// Snapshot copies the current remaining seats.
func (t *Tally) Snapshot() map[string]int {
	m := make(map[string]int, len(t.remaining))
	for k, v := range t.remaining {
		m[k] = v
	}
	return m
}
