package trigger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/relay"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"user@example.com", true},
		{"USER.Name+tag@Sub.Example.ORG", true},
		{"a_b%c-d@x-y.io", true},
		{"no-at-sign.com", false},
		{"user@localhost", false},
		{"user@example.c", false},
		{"user name@example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidEmail(tt.addr); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestBuild_TemplateIDMode(t *testing.T) {
	req, err := Build(Target{TemplateID: "t-1"}, "a@b.co", "p-1",
		map[string]string{"user_name": "Ann"},
		[]relay.Attachment{{ID: "a1", Filename: "x.txt", ContentType: "text/plain", Size: 1, Content: "eA=="}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if req.Mode != relay.ModeTemplateID || req.Path() != "/api/email/send" {
		t.Errorf("Build() mode = %q path = %q", req.Mode, req.Path())
	}

	data, _ := json.Marshal(req)
	var body map[string]any
	json.Unmarshal(data, &body)

	for _, key := range []string{"template_id", "to_email", "variables", "project_id", "attachments"} {
		if _, ok := body[key]; !ok {
			t.Errorf("body missing %q: %s", key, data)
		}
	}
	if _, ok := body["trigger_route"]; ok {
		t.Errorf("body must not carry trigger_route: %s", data)
	}
}

func TestBuild_TriggerRouteMode(t *testing.T) {
	req, err := Build(Target{TriggerRoute: "/api/email/otp"}, "a@b.co", "p-1", nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Mode != relay.ModeTriggerRoute || req.Path() != "/api/email/send-by-route" {
		t.Errorf("Build() mode = %q path = %q", req.Mode, req.Path())
	}

	data, _ := json.Marshal(req)
	var body map[string]any
	json.Unmarshal(data, &body)
	if body["trigger_route"] != "/api/email/otp" {
		t.Errorf("trigger_route = %v", body["trigger_route"])
	}
	if _, ok := body["template_id"]; ok {
		t.Errorf("body must not carry template_id: %s", data)
	}
	if _, ok := body["attachments"]; ok {
		t.Errorf("empty attachments should be omitted: %s", data)
	}
}

func TestBuild_ContentMode(t *testing.T) {
	req, err := Build(Target{Subject: " Hello {name} ", Content: "<p>Hi {name}</p>"}, "a@b.co", "p-1",
		map[string]string{"name": "Ann"}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Mode != relay.ModeContent || req.Path() != "/api/email/send" {
		t.Errorf("Build() mode = %q path = %q", req.Mode, req.Path())
	}
	if req.Subject != "Hello {name}" || req.Content != "<p>Hi {name}</p>" {
		t.Errorf("Build() subject = %q content = %q", req.Subject, req.Content)
	}

	data, _ := json.Marshal(req)
	var body map[string]any
	json.Unmarshal(data, &body)
	for _, key := range []string{"template_id", "trigger_route"} {
		if _, ok := body[key]; ok {
			t.Errorf("body must not carry %s: %s", key, data)
		}
	}
	if body["content"] != "<p>Hi {name}</p>" {
		t.Errorf("content = %v", body["content"])
	}

	req, err = Build(Target{Content: "x"}, "a@b.co", "p-1", nil, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Subject != DefaultSubject {
		t.Errorf("Subject = %q, want %q", req.Subject, DefaultSubject)
	}
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name      string
		target    Target
		recipient string
		projectID string
	}{
		{"bad recipient", Target{TemplateID: "t"}, "not-an-email", "p"},
		{"neither target", Target{}, "a@b.co", "p"},
		{"both targets", Target{TemplateID: "t", TriggerRoute: "/r"}, "a@b.co", "p"},
		{"template and content", Target{TemplateID: "t", Content: "<p>x</p>"}, "a@b.co", "p"},
		{"route and content", Target{TriggerRoute: "/r", Content: "<p>x</p>"}, "a@b.co", "p"},
		{"subject without content", Target{Subject: "Hi"}, "a@b.co", "p"},
		{"subject with template", Target{TemplateID: "t", Subject: "Hi"}, "a@b.co", "p"},
		{"blank content", Target{Content: "  "}, "a@b.co", "p"},
		{"missing project", Target{TemplateID: "t"}, "a@b.co", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.target, tt.recipient, tt.projectID, nil, nil)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Build() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	vars := map[string]string{"z": "1", "a": "2", "m": "3", "otp_code": "123456"}

	first, _ := Build(Target{TemplateID: "t"}, "a@b.co", "p", vars, nil)
	second, _ := Build(Target{TemplateID: "t"}, "a@b.co", "p", vars, nil)

	b1, _ := json.Marshal(first)
	b2, _ := json.Marshal(second)
	if !bytes.Equal(b1, b2) {
		t.Errorf("Build() not deterministic:\n%s\n%s", b1, b2)
	}
}

func TestBuild_CopiesVariables(t *testing.T) {
	vars := map[string]string{"a": "1"}
	req, _ := Build(Target{TemplateID: "t"}, "a@b.co", "p", vars, nil)
	req.Variables["a"] = "changed"
	if vars["a"] != "1" {
		t.Error("Build() should not alias the caller's map")
	}
}

func TestTargetFor(t *testing.T) {
	withRoute := &models.Template{ID: "t-1", TriggerRoute: "/api/email/otp"}
	if got := TargetFor(withRoute); got.TriggerRoute != "/api/email/otp" || got.TemplateID != "" {
		t.Errorf("TargetFor() = %+v, want route", got)
	}

	plain := &models.Template{ID: "t-2"}
	if got := TargetFor(plain); got.TemplateID != "t-2" || got.TriggerRoute != "" {
		t.Errorf("TargetFor() = %+v, want id", got)
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		route string
		email string
		vars  map[string]string
		want  string
	}{
		{
			name:  "vars sorted and empty skipped",
			base:  "http://localhost:8025/",
			route: "/api/email/otp",
			email: "a@b.co",
			vars:  map[string]string{"user_name": "Ann Lee", "otp_code": "123456", "company_name": ""},
			want:  "http://localhost:8025/api/email/otp?email=a%40b.co&otp_code=123456&user_name=Ann+Lee",
		},
		{
			name:  "no vars",
			base:  "https://relay.example.com",
			route: "api/email/registration",
			email: "x@y.io",
			want:  "https://relay.example.com/api/email/registration?email=x%40y.io",
		},
		{
			name:  "no email no vars",
			base:  "https://relay.example.com",
			route: "/hook",
			want:  "https://relay.example.com/hook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URL(tt.base, tt.route, tt.email, tt.vars)
			if err != nil {
				t.Fatalf("URL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURL_NoRoute(t *testing.T) {
	if _, err := URL("http://x", "", "a@b.co", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("URL() error = %v, want ErrValidation", err)
	}
}
