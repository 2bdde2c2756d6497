package domain

import "fmt"

// Status is the lifecycle state of a Match.
//
// Removal is a deletion, not a status: only proposed matches may be
// deleted, everything later is declined instead so the audit trail survives.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusConfirmed Status = "confirmed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusProposed,
	StatusRequested,
	StatusAccepted,
	StatusDeclined,
	StatusConfirmed,
}

// LiveStatuses are the states in which a match occupies its guest.
// A guest has at most one match in any of these states.
var LiveStatuses = []Status{
	StatusProposed,
	StatusRequested,
	StatusAccepted,
	StatusConfirmed,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusRequested, StatusAccepted, StatusDeclined, StatusConfirmed:
		return true
	}
	return false
}

// Live reports whether a match in this status blocks its guest from
// being matched again.
func (s Status) Live() bool {
	switch s {
	case StatusProposed, StatusRequested, StatusAccepted, StatusConfirmed:
		return true
	case StatusDeclined:
		return false
	}
	return false
}

// transitions lists the statuses each status may move to. Declined and
// confirmed are terminal.
var transitions = map[Status][]Status{
	StatusProposed:  {StatusRequested},
	StatusRequested: {StatusAccepted, StatusDeclined},
	StatusAccepted:  {StatusConfirmed},
}

// CanTransition reports whether a match may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", Validationf("unknown match status %q", raw)
	}
	return s, nil
}

// Purpose scopes an action token to exactly one kind of transition.
type Purpose string

const (
	PurposeHostResponse      Purpose = "host_response"
	PurposeAttendanceConfirm Purpose = "attendance_confirm"
	PurposeNoShowReport      Purpose = "noshow_report"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeHostResponse, PurposeAttendanceConfirm, PurposeNoShowReport:
		return true
	}
	return false
}

// HostScoped reports whether tokens of this purpose address a host
// rather than a single match. No-show reports cover every confirmed
// match of a host, every other purpose targets one match.
func (p Purpose) HostScoped() bool {
	switch p {
	case PurposeNoShowReport:
		return true
	case PurposeHostResponse, PurposeAttendanceConfirm:
		return false
	}
	return false
}

// Action is what a host chose when following a request link.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
)

// ParseAction validates a host response action.
func ParseAction(raw string) (Action, error) {
	switch a := Action(raw); a {
	case ActionAccept, ActionDecline:
		return a, nil
	}
	return "", Validationf("unknown action %q: must be %q or %q", raw, ActionAccept, ActionDecline)
}

// Outcome is the recorded result of consuming an action token. It is
// replayed verbatim when the same token is presented again.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeDeclined   Outcome = "declined"
	OutcomeExpired    Outcome = "expired"
	OutcomeReassigned Outcome = "reassigned"
	OutcomeConfirmed  Outcome = "confirmed"
)

// OutcomeReported builds the outcome recorded for a no-show submission.
func OutcomeReported(count int) Outcome {
	return Outcome(fmt.Sprintf("reported:%d", count))
}

// ReportedCount extracts the count from an OutcomeReported value.
func (o Outcome) ReportedCount() (int, bool) {
	var n int
	if _, err := fmt.Sscanf(string(o), "reported:%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// Already returns the replay form of an outcome ("already_accepted").
func (o Outcome) Already() string {
	return "already_" + string(o)
}
