package trigger

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/relay"
)

var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// ValidEmail reports whether addr is an acceptable recipient.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// DefaultSubject is used for inline content sent without a subject.
const DefaultSubject = "No subject"

// Target names what a send delivers: a stored template by id, a stored
// template by route, or inline subject and content. Exactly one of
// TemplateID, TriggerRoute and Content is set.
type Target struct {
	TemplateID   string
	TriggerRoute string
	Subject      string
	Content      string
}

// IsContent reports whether the target carries inline content.
func (t Target) IsContent() bool {
	return strings.TrimSpace(t.Content) != ""
}

// Validate enforces the exactly-one rule.
func (t Target) Validate() error {
	set := 0
	for _, v := range []string{t.TemplateID, t.TriggerRoute, t.Content} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	switch {
	case set > 1:
		return apperr.Validation("provide only one of templateId, triggerRoute or content")
	case set == 0 && strings.TrimSpace(t.Subject) != "":
		return apperr.Validation("content is required when subject is provided")
	case set == 0:
		return apperr.Validation("templateId, triggerRoute or content is required")
	case strings.TrimSpace(t.Subject) != "" && !t.IsContent():
		return apperr.Validation("subject is only allowed with content")
	}
	return nil
}

// TargetFor returns the target a stored template is sent through: its route
// when it has one, otherwise its id.
func TargetFor(tmpl *models.Template) Target {
	if tmpl.HasTriggerRoute() {
		return Target{TriggerRoute: tmpl.TriggerRoute}
	}
	return Target{TemplateID: tmpl.ID}
}

// Build encodes a relay send request. The recipient is checked before
// anything else; variables are passed through as opaque strings.
func Build(target Target, recipient, projectID string, vars map[string]string, attachments []relay.Attachment) (*relay.SendRequest, error) {
	if !ValidEmail(recipient) {
		return nil, apperr.Validation("invalid email address")
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, apperr.Validation("projectId is required")
	}

	variables := make(map[string]string, len(vars))
	for k, v := range vars {
		variables[k] = v
	}

	req := &relay.SendRequest{
		ToEmail:     recipient,
		Variables:   variables,
		ProjectID:   projectID,
		Attachments: attachments,
	}
	switch {
	case target.IsContent():
		req.Mode = relay.ModeContent
		req.Content = target.Content
		req.Subject = strings.TrimSpace(target.Subject)
		if req.Subject == "" {
			req.Subject = DefaultSubject
		}
	case target.TriggerRoute != "":
		req.Mode = relay.ModeTriggerRoute
		req.TriggerRoute = target.TriggerRoute
	default:
		req.Mode = relay.ModeTemplateID
		req.TemplateID = target.TemplateID
	}
	return req, nil
}

// URL builds the GET trigger URL: base + route + ?email=...&var=value.
// Empty values are omitted. Query keys are sorted, so the output is stable.
func URL(baseURL, route, email string, vars map[string]string) (string, error) {
	if strings.TrimSpace(route) == "" {
		return "", apperr.Validation("template has no trigger route")
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return "", apperr.Validation("invalid base url %q", baseURL)
	}

	q := url.Values{}
	if email != "" {
		q.Set("email", email)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if vars[k] == "" || (k == "email" && email != "") {
			continue
		}
		q.Set(k, vars[k])
	}

	u := strings.TrimRight(baseURL, "/") + route
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u, nil
}
