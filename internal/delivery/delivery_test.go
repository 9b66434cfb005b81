package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/otp"
	"github.com/foxzi/relaydesk/internal/ratelimit"
	"github.com/foxzi/relaydesk/internal/relay"
)

type fakeCatalog struct {
	projects  map[string]*models.Project
	templates map[string]*models.Template
}

func (c *fakeCatalog) GetProject(ctx context.Context, userID, id string) (*models.Project, error) {
	p, ok := c.projects[id]
	if !ok || (userID != "" && p.UserID != userID) {
		return nil, apperr.NotFound("project", id)
	}
	return p, nil
}

func (c *fakeCatalog) GetTemplate(ctx context.Context, userID, id string) (*models.Template, error) {
	t, ok := c.templates[id]
	if !ok {
		return nil, apperr.NotFound("template", id)
	}
	return t, nil
}

func (c *fakeCatalog) GetTemplateByRoute(ctx context.Context, projectID, route string) (*models.Template, error) {
	for _, t := range c.templates {
		if t.ProjectID == projectID && t.TriggerRoute == route {
			return t, nil
		}
	}
	return nil, apperr.NotFound("template with route", route)
}

type fakeResolver struct {
	calls [][]string
}

func (r *fakeResolver) Resolve(ctx context.Context, projectID string, refs []models.AttachmentRef) []relay.Attachment {
	ids := make([]string, 0, len(refs))
	out := make([]relay.Attachment, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.RefID())
		if ref.RefID() == "gone" {
			continue
		}
		out = append(out, relay.Attachment{ID: ref.RefID(), Filename: ref.RefID() + ".txt", Content: "eA=="})
	}
	r.calls = append(r.calls, ids)
	return out
}

type fakeSender struct {
	requests []*relay.SendRequest
	result   *relay.SendResult
	err      error
}

func (s *fakeSender) Send(ctx context.Context, req *relay.SendRequest) (*relay.SendResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &relay.SendResult{MessageID: "msg-1"}, nil
}

type fakeThrottle struct {
	seen []ratelimit.Request
	err  error
}

func (f *fakeThrottle) Check(ctx context.Context, req *ratelimit.Request) error {
	f.seen = append(f.seen, *req)
	return f.err
}

func newTestService() (*Service, *fakeSender, *fakeResolver) {
	return newThrottledTestService(nil)
}

func newThrottledTestService(throttle Throttle) (*Service, *fakeSender, *fakeResolver) {
	catalog := &fakeCatalog{
		projects: map[string]*models.Project{
			"p1": {ID: "p1", UserID: "u1", Name: "Acme"},
		},
		templates: map[string]*models.Template{
			"t-plain": {
				ID: "t-plain", ProjectID: "p1", Name: "Welcome",
				Subject: "Hi {name}", Content: "<p>Hello {name}</p><script>alert(1)</script>",
				Attachments: []models.AttachmentRef{models.RefByID("a1"), models.RefByID("gone"), models.RefByID("a3")},
			},
			"t-otp": {
				ID: "t-otp", ProjectID: "p1", Name: "OTP Verification",
				Content: "Code {otp_code}", TriggerRoute: "/api/email/otp",
			},
			"t-other": {ID: "t-other", ProjectID: "p2", Name: "Other", Content: "x"},
		},
	}
	sender := &fakeSender{}
	resolver := &fakeResolver{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(catalog, resolver, sender, otp.NewGenerator("relaydesk"), throttle, "http://relay.local:8025/", logger)
	return svc, sender, resolver
}

func TestService_RenderTemplate(t *testing.T) {
	svc, _, _ := newTestService()

	p := svc.RenderTemplate("Hi {name}", "<p>{name} owes {amount}</p><script>x()</script>", map[string]string{
		"name":   "Ann",
		"amount": "",
	})

	if p.Subject != "Hi Ann" {
		t.Errorf("Subject = %q, want %q", p.Subject, "Hi Ann")
	}
	if !strings.Contains(p.Content, "Ann owes {amount}") {
		t.Errorf("Content = %q, want unfilled placeholder kept", p.Content)
	}
	if strings.Contains(p.SafeContent, "<script>") {
		t.Errorf("SafeContent = %q, want script removed", p.SafeContent)
	}
	if len(p.Missing) != 1 || p.Missing[0] != "amount" {
		t.Errorf("Missing = %v, want [amount]", p.Missing)
	}
}

func TestService_Preview(t *testing.T) {
	svc, sender, _ := newTestService()

	p, err := svc.Preview(context.Background(), "u1", "t-plain", map[string]string{"name": "Bob"})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if p.Subject != "Hi Bob" {
		t.Errorf("Subject = %q, want Hi Bob", p.Subject)
	}
	if len(sender.requests) != 0 {
		t.Error("Preview() must not contact the relay")
	}

	if _, err := svc.Preview(context.Background(), "u1", "missing", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Preview() error = %v, want ErrNotFound", err)
	}
}

func TestService_TriggerURL(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	got, err := svc.TriggerURL(ctx, "u1", "t-otp", "a@b.co", map[string]string{"user_name": "Ann Lee", "empty": ""})
	if err != nil {
		t.Fatalf("TriggerURL() error = %v", err)
	}
	want := "http://relay.local:8025/api/email/otp?email=a%40b.co&user_name=Ann+Lee"
	if got != want {
		t.Errorf("TriggerURL() = %q, want %q", got, want)
	}

	if _, err := svc.TriggerURL(ctx, "u1", "t-plain", "a@b.co", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("TriggerURL() without route error = %v, want validation error", err)
	}
	if _, err := svc.TriggerURL(ctx, "u1", "t-otp", "nope", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("TriggerURL() bad email error = %v, want validation error", err)
	}
}

func TestService_SendValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      SendInput
		wantErr error
	}{
		{"invalid recipient", SendInput{TemplateID: "t-plain", To: "not-an-email", ProjectID: "p1"}, apperr.ErrValidation},
		{"missing recipient", SendInput{TemplateID: "t-plain", ProjectID: "p1"}, apperr.ErrValidation},
		{"no target", SendInput{To: "a@b.co", ProjectID: "p1"}, apperr.ErrValidation},
		{"both targets", SendInput{TemplateID: "t-plain", TriggerRoute: "/x", To: "a@b.co", ProjectID: "p1"}, apperr.ErrValidation},
		{"missing project", SendInput{TemplateID: "t-plain", To: "a@b.co"}, apperr.ErrValidation},
		{"foreign template", SendInput{TemplateID: "t-other", To: "a@b.co", ProjectID: "p1"}, apperr.ErrValidation},
		{"unknown project", SendInput{TemplateID: "t-plain", To: "a@b.co", ProjectID: "p9"}, apperr.ErrNotFound},
		{"unknown route", SendInput{TriggerRoute: "/nope", To: "a@b.co", ProjectID: "p1"}, apperr.ErrNotFound},
		{"template and content", SendInput{TemplateID: "t-plain", Content: "<p>x</p>", To: "a@b.co", ProjectID: "p1"}, apperr.ErrValidation},
		{"subject only", SendInput{Subject: "Hi", To: "a@b.co", ProjectID: "p1"}, apperr.ErrValidation},
		{"content for foreign project", SendInput{Content: "<p>x</p>", To: "a@b.co", ProjectID: "p9"}, apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sender, _ := newTestService()
			_, err := svc.Send(context.Background(), "u1", tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
			if len(sender.requests) != 0 {
				t.Errorf("relay called %d times, want 0", len(sender.requests))
			}
		})
	}
}

func TestService_SendTemplateIDMode(t *testing.T) {
	svc, sender, resolver := newTestService()

	out, err := svc.Send(context.Background(), "u1", SendInput{
		TemplateID: "t-plain",
		To:         "dest@example.com",
		ProjectID:  "p1",
		Variables:  map[string]string{"name": "Ann"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !out.Success || out.MessageID != "msg-1" || out.TemplateName != "Welcome" {
		t.Errorf("Send() = %+v", out)
	}

	req := sender.requests[0]
	if req.Mode != relay.ModeTemplateID || req.TemplateID != "t-plain" || req.TriggerRoute != "" {
		t.Errorf("request = %+v, want template id mode", req)
	}
	if req.Path() != "/api/email/send" {
		t.Errorf("Path() = %q", req.Path())
	}

	if len(resolver.calls) != 1 || strings.Join(resolver.calls[0], ",") != "a1,gone,a3" {
		t.Errorf("resolver calls = %v, want template attachments", resolver.calls)
	}
	if len(req.Attachments) != 2 || req.Attachments[0].ID != "a1" || req.Attachments[1].ID != "a3" {
		t.Errorf("Attachments = %+v, want a1 and a3 in order", req.Attachments)
	}
}

func TestService_SendRouteModeWithOTP(t *testing.T) {
	svc, sender, _ := newTestService()

	_, err := svc.Send(context.Background(), "u1", SendInput{
		TriggerRoute: "/api/email/otp",
		To:           "dest@example.com",
		ProjectID:    "p1",
		Variables:    map[string]string{"otp_code": otp.Sentinel},
		Attachments:  []models.AttachmentRef{models.RefByID("a9")},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	req := sender.requests[0]
	if req.Mode != relay.ModeTriggerRoute || req.TriggerRoute != "/api/email/otp" || req.TemplateID != "" {
		t.Errorf("request = %+v, want route mode", req)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(req.Variables["otp_code"]) {
		t.Errorf("otp_code = %q, want 6 digits", req.Variables["otp_code"])
	}
	if len(req.Attachments) != 1 || req.Attachments[0].ID != "a9" {
		t.Errorf("Attachments = %+v, want explicit a9", req.Attachments)
	}
}

func TestService_SendByIDFollowsRoute(t *testing.T) {
	svc, sender, _ := newTestService()

	if _, err := svc.Send(context.Background(), "u1", SendInput{TemplateID: "t-otp", To: "dest@example.com", ProjectID: "p1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sender.requests[0].Mode != relay.ModeTriggerRoute {
		t.Errorf("Mode = %v, want trigger route for a routed template", sender.requests[0].Mode)
	}
}

func TestService_SendRelayError(t *testing.T) {
	svc, sender, _ := newTestService()
	sender.err = &relay.Error{Kind: relay.KindAuthentication, Status: 500, Message: relay.MsgAuthentication}

	_, err := svc.Send(context.Background(), "u1", SendInput{TemplateID: "t-plain", To: "dest@example.com", ProjectID: "p1"})

	var relayErr *relay.Error
	if !errors.As(err, &relayErr) {
		t.Fatalf("Send() error = %v, want *relay.Error", err)
	}
	if relayErr.Kind != relay.KindAuthentication {
		t.Errorf("Kind = %v, want authentication", relayErr.Kind)
	}
	if len(sender.requests) != 1 {
		t.Errorf("relay called %d times, want exactly 1 (no retry)", len(sender.requests))
	}
}

func TestService_SendContentMode(t *testing.T) {
	svc, sender, resolver := newTestService()

	out, err := svc.Send(context.Background(), "u1", SendInput{
		Subject:     "Draft for {name}",
		Content:     "<p>Hello {name}</p>",
		To:          "dest@example.com",
		ProjectID:   "p1",
		Variables:   map[string]string{"name": "Ann"},
		Attachments: []models.AttachmentRef{models.RefByID("a1")},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !out.Success || out.MessageID != "msg-1" || out.TemplateName != "" {
		t.Errorf("Send() = %+v", out)
	}

	req := sender.requests[0]
	if req.Mode != relay.ModeContent || req.TemplateID != "" || req.TriggerRoute != "" {
		t.Errorf("request = %+v, want content mode", req)
	}
	if req.Subject != "Draft for {name}" || req.Content != "<p>Hello {name}</p>" {
		t.Errorf("subject = %q content = %q", req.Subject, req.Content)
	}
	if req.Path() != "/api/email/send" {
		t.Errorf("Path() = %q", req.Path())
	}
	if len(resolver.calls) != 1 || strings.Join(resolver.calls[0], ",") != "a1" {
		t.Errorf("resolver calls = %v, want only explicit attachments", resolver.calls)
	}
}

func TestService_SendThrottledAfterChecks(t *testing.T) {
	throttle := &fakeThrottle{}
	svc, sender, _ := newThrottledTestService(throttle)
	ctx := context.Background()

	rejected := []struct {
		userID string
		in     SendInput
	}{
		{"u1", SendInput{TemplateID: "t-plain", To: "bad", ProjectID: "p1"}},
		{"u2", SendInput{TemplateID: "t-plain", To: "a@b.co", ProjectID: "p1"}},
		{"u1", SendInput{TemplateID: "t-other", To: "a@b.co", ProjectID: "p1"}},
		{"u1", SendInput{TriggerRoute: "/nope", To: "a@b.co", ProjectID: "p1"}},
	}
	for _, r := range rejected {
		if _, err := svc.Send(ctx, r.userID, r.in); err == nil {
			t.Fatalf("Send(%s, %+v) should fail", r.userID, r.in)
		}
	}
	if len(throttle.seen) != 0 {
		t.Fatalf("throttle saw %d rejected requests, want 0", len(throttle.seen))
	}

	if _, err := svc.Send(ctx, "u1", SendInput{TemplateID: "t-plain", To: "a@b.co", ProjectID: "p1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	want := ratelimit.Request{ProjectID: "p1", UserID: "u1"}
	if len(throttle.seen) != 1 || throttle.seen[0] != want {
		t.Errorf("throttle saw %+v, want [%+v]", throttle.seen, want)
	}

	throttle.err = &ratelimit.ExceededError{Level: ratelimit.LevelProject, Key: "project:p1", RetryAfter: time.Second}
	_, err := svc.Send(ctx, "u1", SendInput{TemplateID: "t-plain", To: "a@b.co", ProjectID: "p1"})
	var exceeded *ratelimit.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Send() error = %v, want *ratelimit.ExceededError", err)
	}
	if len(sender.requests) != 1 {
		t.Errorf("relay called %d times, want 1", len(sender.requests))
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&relay.Error{Kind: relay.KindTimeout}, "timeout"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
