package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/roach88/dinnermatch/internal/domain"
)

// Message is a rendered notification ready to send.
type Message struct {
	ID        int64             `json:"id"`
	DedupeKey string            `json:"dedupe_key"`
	Template  domain.Template   `json:"template"`
	To        string            `json:"to"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}

type layout struct {
	subject string
	body    string
}

var layouts = map[domain.Template]layout{
	domain.TemplateMatchRequest: {
		subject: "Can you host {{.guest_name}} this Friday?",
		body: `Hi {{.host_name}},

We'd love for {{.guest_name}} (party of {{.party_size}}) to join your Shabbat table.
{{.why_its_a_fit}}

Accept:  {{.accept_url}}
Decline: {{.decline_url}}

This link is valid for {{.expires_in}}.
`,
	},
	domain.TemplateConfirmedGuest: {
		subject: "You're joining {{.host_name}} for Friday night dinner",
		body: `Hi {{.guest_name}},

{{.host_name}} is expecting you.
Address: {{.host_address}}
Phone: {{.host_phone}}
`,
	},
	domain.TemplateConfirmedHost: {
		subject: "{{.guest_name}} is joining you Friday night",
		body: `Hi {{.host_name}},

{{.guest_name}} (party of {{.party_size}}) will be at your table.
Email: {{.guest_email}}
Phone: {{.guest_phone}}
Kosher: {{.guest_kosher}}
`,
	},
	domain.TemplateAwaitingFinalize: {
		subject: "{{.host_name}} accepted {{.guest_name}}",
		body:    "Match {{.match_id}} is accepted and waiting to be finalized.\n",
	},
	domain.TemplateDeclinedAdmin: {
		subject: "Match {{.match_id}} declined",
		body:    "{{.host_name}} will not host {{.guest_name}}. The guest can be matched again.\n",
	},
	domain.TemplateReminderGuest: {
		subject: "See you tonight at {{.host_name}}'s",
		body: `Hi {{.guest_name}},

Please confirm you're still coming and we'll send the address:
{{.confirm_url}}
`,
	},
	domain.TemplateSummaryHost: {
		subject: "Your guests tonight ({{.guest_count}})",
		body: `Hi {{.host_name}},

You're hosting {{.total_seats}} tonight:
{{.guest_list}}
`,
	},
	domain.TemplateNoShowRequest: {
		subject: "How was dinner?",
		body: `Hi {{.host_name}},

Thank you for hosting. Let us know if anyone didn't make it:
{{.report_url}}

This link is valid for {{.expires_in}}.
`,
	},
	domain.TemplateReassignedOldHost: {
		subject: "Change of plans for Friday",
		body: `Hi {{.host_name}},

{{.guest_name}} has been placed elsewhere, so there's nothing you need to do.
Your earlier request link no longer works.
`,
	},
}

// Render turns a queued notification into a Message. links carries the
// action URLs built from the notification's token.
func Render(n domain.Notification, links map[string]string) (Message, error) {
	l, ok := layouts[n.Template]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", n.Template)
	}
	data := make(map[string]string, len(n.Data)+len(links))
	for k, v := range n.Data {
		data[k] = v
	}
	for k, v := range links {
		data[k] = v
	}

	subject, err := execute(string(n.Template)+".subject", l.subject, data)
	if err != nil {
		return Message{}, err
	}
	body, err := execute(string(n.Template)+".body", l.body, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:        n.ID,
		DedupeKey: n.DedupeKey,
		Template:  n.Template,
		To:        n.To,
		Subject:   subject,
		Body:      body,
		Data:      data,
	}, nil
}

func execute(name, text string, data map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
