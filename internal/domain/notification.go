package domain

import "time"

// Template names an outbound message layout.
type Template string

const (
	TemplateMatchRequest      Template = "match_request_to_host"
	TemplateConfirmedGuest    Template = "match_confirmed_guest"
	TemplateConfirmedHost     Template = "match_confirmed_host"
	TemplateAwaitingFinalize  Template = "match_accepted_admin"
	TemplateDeclinedAdmin     Template = "match_declined_admin"
	TemplateReminderGuest     Template = "day_of_reminder_guest"
	TemplateSummaryHost       Template = "day_of_summary_host"
	TemplateNoShowRequest     Template = "noshow_report_request"
	TemplateReassignedOldHost Template = "match_withdrawn_host"
)

// LinkBearing reports whether messages of this template carry an action link.
func (t Template) LinkBearing() bool {
	switch t {
	case TemplateMatchRequest, TemplateReminderGuest, TemplateNoShowRequest:
		return true
	}
	return false
}

// DeliveryStatus tracks an outbox entry.
type DeliveryStatus string

const (
	DeliveryQueued DeliveryStatus = "queued"
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Notification is one queued outbound message.
//
// ActionToken holds the raw token for link-bearing templates until the
// message is delivered, after which the store clears it.
type Notification struct {
	ID          int64             `json:"id"`
	DedupeKey   string            `json:"dedupe_key"`
	Template    Template          `json:"template"`
	To          string            `json:"to"`
	Data        map[string]string `json:"data,omitempty"`
	ActionToken string            `json:"-"`
	MatchID     string            `json:"match_id,omitempty"`
	HostID      string            `json:"host_id,omitempty"`
	Status      DeliveryStatus    `json:"status"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	SentAt      *time.Time        `json:"sent_at,omitempty"`
}
