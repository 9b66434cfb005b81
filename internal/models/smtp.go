package models

import "time"

// SMTPConfig is a project's SMTP credentials. Password is plaintext in
// memory and only leaves the process toward the relay.
type SMTPConfig struct {
	ProjectID string    `json:"project_id"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Secure    bool      `json:"secure"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	FromEmail string    `json:"from_email"`
	FromName  string    `json:"from_name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SafeSMTPConfig is the SMTPConfig shape returned to callers.
type SafeSMTPConfig struct {
	ProjectID   string    `json:"project_id"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Secure      bool      `json:"secure"`
	Username    string    `json:"username"`
	FromEmail   string    `json:"from_email"`
	FromName    string    `json:"from_name"`
	HasPassword bool      `json:"has_password"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Redact drops the password.
func (c *SMTPConfig) Redact() *SafeSMTPConfig {
	return &SafeSMTPConfig{
		ProjectID:   c.ProjectID,
		Host:        c.Host,
		Port:        c.Port,
		Secure:      c.Secure,
		Username:    c.Username,
		FromEmail:   c.FromEmail,
		FromName:    c.FromName,
		HasPassword: c.Password != "",
		UpdatedAt:   c.UpdatedAt,
	}
}
