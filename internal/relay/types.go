package relay

import "net/http"

// Mode selects how the relay locates the message body.
type Mode string

const (
	ModeTemplateID   Mode = "template_id"
	ModeTriggerRoute Mode = "trigger_route"
	// ModeContent carries subject and content inline instead of a template.
	ModeContent Mode = "content"
)

const (
	pathSend        = "/api/email/send"
	pathSendByRoute = "/api/email/send-by-route"
	pathSMTPConfig  = "/api/smtp-config/"
)

// Attachment is the inline form the relay expects. Content is base64.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Content     string `json:"content"`
	URL         string `json:"url,omitempty"`
}

// SendRequest is the body of a relay send call.
type SendRequest struct {
	Mode         Mode              `json:"-"`
	TemplateID   string            `json:"template_id,omitempty"`
	TriggerRoute string            `json:"trigger_route,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Content      string            `json:"content,omitempty"`
	ToEmail      string            `json:"to_email"`
	Variables    map[string]string `json:"variables"`
	ProjectID    string            `json:"project_id"`
	Attachments  []Attachment      `json:"attachments,omitempty"`
}

// Path returns the relay endpoint for the request's mode.
func (r *SendRequest) Path() string {
	if r.Mode == ModeTriggerRoute {
		return pathSendByRoute
	}
	return pathSend
}

// SendResult is a successful relay outcome.
type SendResult struct {
	MessageID    string `json:"message_id"`
	TemplateName string `json:"template_name,omitempty"`
	Message      string `json:"message,omitempty"`
}

// sendResponse covers both casing styles the relay has used.
type sendResponse struct {
	Success           *bool  `json:"success"`
	Message           string `json:"message"`
	Error             string `json:"error"`
	MessageID         string `json:"messageId"`
	MessageIDSnake    string `json:"message_id"`
	TemplateID        string `json:"template_id"`
	TemplateName      string `json:"templateName"`
	TemplateNameSnake string `json:"template_name"`
}

func (r *sendResponse) result() *SendResult {
	return &SendResult{
		MessageID:    firstNonEmpty(r.MessageID, r.MessageIDSnake, r.TemplateID),
		TemplateName: firstNonEmpty(r.TemplateName, r.TemplateNameSnake),
		Message:      r.Message,
	}
}

// SMTPConfig is the relay's view of a project's SMTP settings.
type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Secure    bool   `json:"secure"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// TestRequest asks the relay to send a test message with stored credentials.
type TestRequest struct {
	TestEmail string `json:"test_email"`
}

// TestResult is the relay's answer to a configuration test.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the relay health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the relay error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e *ErrorResponse) text() string {
	return firstNonEmpty(e.Error, e.Detail, e.Message)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
