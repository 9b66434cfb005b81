// Package delivery turns stored templates into previews, trigger URLs and
// relay sends.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/metrics"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/ratelimit"
	"github.com/foxzi/relaydesk/internal/relay"
	"github.com/foxzi/relaydesk/internal/render"
	"github.com/foxzi/relaydesk/internal/trigger"
)

// Catalog loads templates and checks project visibility.
type Catalog interface {
	GetProject(ctx context.Context, userID, id string) (*models.Project, error)
	GetTemplate(ctx context.Context, userID, id string) (*models.Template, error)
	GetTemplateByRoute(ctx context.Context, projectID, route string) (*models.Template, error)
}

// Resolver turns attachment references into inline relay attachments.
type Resolver interface {
	Resolve(ctx context.Context, projectID string, refs []models.AttachmentRef) []relay.Attachment
}

// Sender submits requests to the relay.
type Sender interface {
	Send(ctx context.Context, req *relay.SendRequest) (*relay.SendResult, error)
}

// CodeGenerator fills the one-time code variable.
type CodeGenerator interface {
	Prepare(vars map[string]string, account string) (map[string]string, error)
}

// Throttle limits sends. Check returns a *ratelimit.ExceededError when the
// caller must wait.
type Throttle interface {
	Check(ctx context.Context, req *ratelimit.Request) error
}

// Preview is a locally rendered template.
type Preview struct {
	Subject     string   `json:"subject"`
	Content     string   `json:"content"`
	SafeContent string   `json:"safe_content"`
	Missing     []string `json:"missing"`
}

// SendInput is a send request from the console. Exactly one of
// TemplateID, TriggerRoute and Content is set; Subject goes with Content.
type SendInput struct {
	TemplateID   string                 `json:"templateId"`
	TriggerRoute string                 `json:"triggerRoute"`
	Subject      string                 `json:"subject"`
	Content      string                 `json:"content"`
	To           string                 `json:"to"`
	Variables    map[string]string      `json:"variables"`
	ProjectID    string                 `json:"projectId"`
	Attachments  []models.AttachmentRef `json:"attachments"`
}

// SendOutput is the confirmation of a successful send.
type SendOutput struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	MessageID    string `json:"messageId"`
	TemplateName string `json:"templateName,omitempty"`
}

// Service implements preview, trigger URL and send.
type Service struct {
	catalog      Catalog
	attachments  Resolver
	sender       Sender
	codes        CodeGenerator
	throttle     Throttle
	policy       *bluemonday.Policy
	relayBaseURL string
	logger       *slog.Logger
}

// NewService creates a delivery service. relayBaseURL is used for trigger
// URLs. A nil throttle disables send limits.
func NewService(catalog Catalog, attachments Resolver, sender Sender, codes CodeGenerator, throttle Throttle, relayBaseURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:      catalog,
		attachments:  attachments,
		sender:       sender,
		codes:        codes,
		throttle:     throttle,
		policy:       bluemonday.UGCPolicy(),
		relayBaseURL: relayBaseURL,
		logger:       logger,
	}
}

// Preview renders a stored template with vars.
func (s *Service) Preview(ctx context.Context, userID, templateID string, vars map[string]string) (*Preview, error) {
	tmpl, err := s.catalog.GetTemplate(ctx, userID, templateID)
	if err != nil {
		return nil, err
	}
	metrics.IncPreviews()
	return s.RenderTemplate(tmpl.Subject, tmpl.Content, vars), nil
}

// RenderTemplate renders subject and content. Empty values count as unset,
// so their placeholders stay visible and are reported as missing.
func (s *Service) RenderTemplate(subject, content string, vars map[string]string) *Preview {
	filled := render.Compact(vars)
	rendered := render.Render(content, filled)

	missing := render.Missing(subject+"\n"+content, filled)
	if missing == nil {
		missing = []string{}
	}

	return &Preview{
		Subject:     render.Render(subject, filled),
		Content:     rendered,
		SafeContent: s.policy.Sanitize(rendered),
		Missing:     missing,
	}
}

// TriggerURL builds the GET URL that fires the template's route on the
// relay.
func (s *Service) TriggerURL(ctx context.Context, userID, templateID, email string, vars map[string]string) (string, error) {
	email = strings.TrimSpace(email)
	if email != "" && !trigger.ValidEmail(email) {
		return "", apperr.Validation("invalid email address")
	}

	tmpl, err := s.catalog.GetTemplate(ctx, userID, templateID)
	if err != nil {
		return "", err
	}
	return trigger.URL(s.relayBaseURL, tmpl.TriggerRoute, email, vars)
}

// Send validates the request, resolves attachments, fills the one-time
// code and forwards the request to the relay. The recipient is checked
// before any lookup or network call, and the throttle only sees requests
// that passed validation and the ownership check. Relay failures are
// returned as *relay.Error without retry.
func (s *Service) Send(ctx context.Context, userID string, in SendInput) (*SendOutput, error) {
	to := strings.TrimSpace(in.To)
	if to == "" {
		return nil, apperr.Validation("recipient email is required")
	}
	if !trigger.ValidEmail(to) {
		return nil, apperr.Validation("invalid email address")
	}
	target := trigger.Target{
		TemplateID:   strings.TrimSpace(in.TemplateID),
		TriggerRoute: strings.TrimSpace(in.TriggerRoute),
		Subject:      in.Subject,
		Content:      in.Content,
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	projectID := strings.TrimSpace(in.ProjectID)
	if projectID == "" {
		return nil, apperr.Validation("projectId is required")
	}

	if _, err := s.catalog.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	refs := in.Attachments
	var tmpl *models.Template
	if !target.IsContent() {
		var err error
		tmpl, err = s.loadTemplate(ctx, userID, projectID, target)
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			refs = tmpl.Attachments
		}
		target = trigger.TargetFor(tmpl)
	}

	if s.throttle != nil {
		if err := s.throttle.Check(ctx, &ratelimit.Request{ProjectID: projectID, UserID: userID}); err != nil {
			return nil, err
		}
	}

	resolved := s.attachments.Resolve(ctx, projectID, refs)

	vars, err := s.codes.Prepare(in.Variables, to)
	if err != nil {
		return nil, err
	}

	req, err := trigger.Build(target, to, projectID, vars, resolved)
	if err != nil {
		return nil, err
	}

	templateID, templateName := "", ""
	if tmpl != nil {
		templateID, templateName = tmpl.ID, tmpl.Name
	}

	start := time.Now()
	res, err := s.sender.Send(ctx, req)
	metrics.ObserveSend(string(req.Mode), outcome(err), time.Since(start))
	if err != nil {
		s.logger.Warn("send failed",
			"project_id", projectID,
			"template_id", templateID,
			"mode", req.Mode,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("email sent",
		"project_id", projectID,
		"template_id", templateID,
		"mode", req.Mode,
		"message_id", res.MessageID,
		"attachments", len(resolved),
	)

	name := res.TemplateName
	if name == "" {
		name = templateName
	}
	msg := res.Message
	if msg == "" {
		msg = "Email sent successfully"
	}
	return &SendOutput{
		Success:      true,
		Message:      msg,
		MessageID:    res.MessageID,
		TemplateName: name,
	}, nil
}

func (s *Service) loadTemplate(ctx context.Context, userID, projectID string, target trigger.Target) (*models.Template, error) {
	if id := target.TemplateID; id != "" {
		tmpl, err := s.catalog.GetTemplate(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if tmpl.ProjectID != projectID {
			return nil, apperr.Validation("template %s does not belong to project %s", tmpl.ID, projectID)
		}
		return tmpl, nil
	}
	return s.catalog.GetTemplateByRoute(ctx, projectID, target.TriggerRoute)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var relayErr *relay.Error
	if errors.As(err, &relayErr) {
		return string(relayErr.Kind)
	}
	return "error"
}
