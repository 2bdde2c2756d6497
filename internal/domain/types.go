package domain

import "time"

// Vibe holds the three 1-5 self-reported compatibility axes.
type Vibe struct {
	Chabad    int `json:"chabad"`
	Social    int `json:"social"`
	Formality int `json:"formality"`
}

// Valid reports whether every axis is within 1..5.
func (v Vibe) Valid() bool {
	for _, x := range []int{v.Chabad, v.Social, v.Formality} {
		if x < 1 || x > 5 {
			return false
		}
	}
	return true
}

// NoTravelLimit is the max_travel_time value meaning distance does not matter.
const NoTravelLimit = 999

// Guest is a person seeking a seat at a dinner.
type Guest struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone,omitempty"`
	PartySize     int          `json:"party_size"`
	Neighborhood  string       `json:"neighborhood"`
	MaxTravelTime int          `json:"max_travel_time"`
	Languages     []string     `json:"languages"`
	Kosher        Requirement  `json:"kosher_requirement"`
	Contribution  Contribution `json:"contribution_range"`
	Vibe          Vibe         `json:"vibe"`
	IsFlagged     bool         `json:"is_flagged"`
	NoShowCount   int          `json:"no_show_count"`

	// CreatedAt is the registration timestamp and the allocation order.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Host is a person offering seats at their table.
type Host struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Phone        string       `json:"phone,omitempty"`
	Address      string       `json:"address"`
	Neighborhood string       `json:"neighborhood"`
	Seats        int          `json:"seats_available"`
	Languages    []string     `json:"languages"`
	Kosher       KosherLevel  `json:"kosher_level"`
	Contribution Contribution `json:"contribution_preference"`
	Vibe         Vibe         `json:"vibe"`
	Tagline      string       `json:"tagline,omitempty"`
	PrivateNotes string       `json:"private_notes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Match pairs one guest with one host for one dinner.
type Match struct {
	ID      string `json:"id"`
	GuestID string `json:"guest_id"`
	HostID  string `json:"host_id"`
	Status  Status `json:"status"`

	// PartySize is the guest's party size when the match was created or
	// last reassigned. The ledger counts this value, so later intake edits
	// to the guest never desynchronize committed seats.
	PartySize int `json:"party_size"`

	Score        float64  `json:"match_score"`
	WhyItsAFit   string   `json:"why_its_a_fit"`
	Alternatives []string `json:"alternatives,omitempty"`
	AdminNotes   string   `json:"admin_notes,omitempty"`

	RequestedAt           *time.Time `json:"requested_at,omitempty"`
	RespondedAt           *time.Time `json:"responded_at,omitempty"`
	FinalizedAt           *time.Time `json:"finalized_at,omitempty"`
	AttendanceConfirmedAt *time.Time `json:"attendance_confirmed_at,omitempty"`
	NoShow                bool       `json:"no_show"`
	NoShowReportedAt      *time.Time `json:"no_show_reported_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionToken is the stored record behind an emailed action link.
// Only the digest of the raw token is persisted.
type ActionToken struct {
	Digest     string     `json:"-"`
	Purpose    Purpose    `json:"purpose"`
	MatchID    string     `json:"match_id,omitempty"`
	HostID     string     `json:"host_id,omitempty"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	Outcome    Outcome    `json:"outcome,omitempty"`
}

// Consumed reports whether the token has been used.
func (t ActionToken) Consumed() bool { return t.ConsumedAt != nil }

// Expired reports whether the token is past its expiry at now.
func (t ActionToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// Subject returns the id the token addresses.
func (t ActionToken) Subject() string {
	if t.Purpose.HostScoped() {
		return t.HostID
	}
	return t.MatchID
}

// Activity is one audit trail entry.
type Activity struct {
	ID         int64             `json:"id"`
	Type       string            `json:"action_type"`
	Actor      string            `json:"actor"`
	TargetType string            `json:"target_type,omitempty"`
	TargetID   string            `json:"target_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Activity types recorded by the workflow.
const (
	ActivityMatchesGenerated  = "matches_generated"
	ActivityMatchEdited       = "match_edited"
	ActivityMatchRemoved      = "match_removed"
	ActivityRequestSent       = "match_request_sent"
	ActivityMatchAccepted     = "match_accepted"
	ActivityMatchDeclined     = "match_declined"
	ActivityMatchExpired      = "match_expired"
	ActivityMatchFinalized    = "match_finalized"
	ActivityReminderSent      = "reminder_sent"
	ActivityAttendanceConfirm = "guest_confirmed_attendance"
	ActivityHostSummarySent   = "host_summary_sent"
	ActivityNoShowRequestSent = "noshow_request_sent"
	ActivityNoShowReported    = "noshow_reported"
	ActivityGuestImported     = "guest_imported"
	ActivityHostImported      = "host_imported"
	ActivityGuestFlagged      = "guest_flagged"
	ActivityNotifyFailed      = "notification_failed"
)

// Actors recorded on activity entries.
const (
	ActorAdmin  = "admin"
	ActorHost   = "host"
	ActorGuest  = "guest"
	ActorSystem = "system"
)
