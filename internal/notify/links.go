package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/roach88/dinnermatch/internal/domain"
)

// Links builds action URLs under a public base URL.
type Links struct {
	BaseURL string
}

// For returns the named links a message of tmpl carries for raw. Templates
// without links return nil.
func (l Links) For(tmpl domain.Template, raw string) (map[string]string, error) {
	if !tmpl.LinkBearing() {
		return nil, nil
	}
	if raw == "" {
		return nil, fmt.Errorf("%s message has no action token", tmpl)
	}
	switch tmpl {
	case domain.TemplateMatchRequest:
		accept, err := l.build("respond", raw, url.Values{"action": {string(domain.ActionAccept)}})
		if err != nil {
			return nil, err
		}
		decline, err := l.build("respond", raw, url.Values{"action": {string(domain.ActionDecline)}})
		if err != nil {
			return nil, err
		}
		return map[string]string{"accept_url": accept, "decline_url": decline}, nil
	case domain.TemplateReminderGuest:
		confirm, err := l.build("confirm", raw, nil)
		if err != nil {
			return nil, err
		}
		return map[string]string{"confirm_url": confirm}, nil
	case domain.TemplateNoShowRequest:
		report, err := l.build("noshow", raw, nil)
		if err != nil {
			return nil, err
		}
		return map[string]string{"report_url": report}, nil
	}
	return nil, nil
}

func (l Links) build(path, raw string, extra url.Values) (string, error) {
	base := strings.TrimSpace(l.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/" + path
	query := parsed.Query()
	for k, vs := range extra {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("token", raw)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
