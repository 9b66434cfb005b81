// Package smtpconfig owns per-project SMTP credentials: validation on write,
// password sealing at rest, a read-through cache, redaction for readers and
// synchronization with the relay.
package smtpconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/cache"
	"github.com/foxzi/relaydesk/internal/metrics"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/relay"
	"github.com/foxzi/relaydesk/internal/trigger"
)

// Store persists configurations. Get returns nil, nil when absent.
type Store interface {
	Upsert(ctx context.Context, c *models.SMTPConfig) error
	Get(ctx context.Context, projectID string) (*models.SMTPConfig, error)
	Delete(ctx context.Context, projectID string) error
}

// Projects resolves the owning project. GetByID returns nil, nil when absent.
type Projects interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
}

// Relay is the subset of the relay client the gate uses.
type Relay interface {
	SaveSMTPConfig(ctx context.Context, projectID string, cfg *relay.SMTPConfig) error
	DeleteSMTPConfig(ctx context.Context, projectID string) error
	TestSMTPConfig(ctx context.Context, projectID, testEmail string) (*relay.TestResult, error)
}

// Fields is the writable part of a configuration.
type Fields struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Secure   bool   `json:"secure"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks that every required field is present and well formed.
func (f *Fields) Validate() error {
	var missing []string
	if strings.TrimSpace(f.Host) == "" {
		missing = append(missing, "host")
	}
	if f.Port == 0 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(f.Username) == "" {
		missing = append(missing, "username")
	}
	if f.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	if f.Port < 1 || f.Port > 65535 {
		return apperr.Validation("port must be between 1 and 65535")
	}
	if !trigger.ValidEmail(strings.TrimSpace(f.Username)) {
		return apperr.Validation("username must be a valid email address")
	}
	return nil
}

// Gate is the only way the rest of the application reads or writes SMTP
// configuration.
type Gate struct {
	store    Store
	projects Projects
	relay    Relay
	configs  *cache.Loader[models.SMTPConfig]
	sealer   *Sealer
	logger   *slog.Logger
}

// NewGate creates a gate. The cache holds sealed records.
func NewGate(store Store, projects Projects, r Relay, c cache.Cache[models.SMTPConfig], ttl time.Duration, sealer *Sealer, logger *slog.Logger) *Gate {
	if sealer == nil {
		sealer = NewSealer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:    store,
		projects: projects,
		relay:    r,
		configs:  cache.NewLoader(c, ttl),
		sealer:   sealer,
		logger:   logger,
	}
}

// Get returns the project's configuration with the password in clear.
// A project without configuration yields apperr.ErrNotConfigured.
func (g *Gate) Get(ctx context.Context, projectID string) (*models.SMTPConfig, error) {
	sealed, err := g.configs.Get(ctx, projectID, func(ctx context.Context) (models.SMTPConfig, error) {
		c, err := g.store.Get(ctx, projectID)
		if err != nil {
			return models.SMTPConfig{}, fmt.Errorf("failed to load smtp config: %w", err)
		}
		if c == nil {
			return models.SMTPConfig{}, fmt.Errorf("%w: project %s", apperr.ErrNotConfigured, projectID)
		}
		return *c, nil
	})
	if err != nil {
		return nil, err
	}

	password, err := g.sealer.Open(sealed.Password)
	if err != nil {
		return nil, err
	}
	sealed.Password = password
	return &sealed, nil
}

// GetSafe returns the redacted configuration.
func (g *Gate) GetSafe(ctx context.Context, projectID string) (*models.SafeSMTPConfig, error) {
	c, err := g.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return Redact(c), nil
}

// Configured reports whether the project has a stored configuration.
func (g *Gate) Configured(ctx context.Context, projectID string) (bool, error) {
	_, err := g.Get(ctx, projectID)
	if errors.Is(err, apperr.ErrNotConfigured) {
		return false, nil
	}
	return err == nil, err
}

// Set validates and stores the configuration, then pushes it to the relay.
// from_email is the username and from_name the project name at write time.
// A relay error is returned after the local record has been saved.
func (g *Gate) Set(ctx context.Context, projectID string, f Fields) (*models.SafeSMTPConfig, error) {
	if err := f.Validate(); err != nil {
		metrics.IncSMTPConfigOp("set", "invalid")
		return nil, err
	}

	project, err := g.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project == nil {
		return nil, apperr.NotFound("project", projectID)
	}

	username := strings.TrimSpace(f.Username)
	c := &models.SMTPConfig{
		ProjectID: projectID,
		Host:      strings.TrimSpace(f.Host),
		Port:      f.Port,
		Secure:    f.Secure,
		Username:  username,
		FromEmail: username,
		FromName:  project.Name,
		UpdatedAt: time.Now(),
	}

	sealed, err := g.sealer.Seal(f.Password)
	if err != nil {
		return nil, err
	}
	stored := *c
	stored.Password = sealed
	if err := g.store.Upsert(ctx, &stored); err != nil {
		metrics.IncSMTPConfigOp("set", "error")
		return nil, err
	}
	g.invalidate(ctx, projectID)

	c.Password = f.Password
	g.logger.Info("smtp config saved", "project_id", projectID, "host", c.Host, "port", c.Port)

	if err := g.relay.SaveSMTPConfig(ctx, projectID, toRelay(c)); err != nil {
		metrics.IncSMTPConfigOp("sync", "error")
		g.logger.Warn("failed to sync smtp config to relay", "project_id", projectID, "error", err)
		return Redact(c), err
	}

	metrics.IncSMTPConfigOp("set", "ok")
	return Redact(c), nil
}

// Delete removes the configuration locally and on the relay.
func (g *Gate) Delete(ctx context.Context, projectID string) error {
	existing, err := g.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: project %s", apperr.ErrNotConfigured, projectID)
	}

	if err := g.store.Delete(ctx, projectID); err != nil {
		metrics.IncSMTPConfigOp("delete", "error")
		return err
	}
	g.invalidate(ctx, projectID)

	if err := g.relay.DeleteSMTPConfig(ctx, projectID); err != nil {
		metrics.IncSMTPConfigOp("delete", "error")
		g.logger.Warn("failed to delete smtp config on relay", "project_id", projectID, "error", err)
		return err
	}

	metrics.IncSMTPConfigOp("delete", "ok")
	g.logger.Info("smtp config deleted", "project_id", projectID)
	return nil
}

// Test asks the relay to send a test message to the given address using
// the stored credentials. The outcome is classified like a regular send.
func (g *Gate) Test(ctx context.Context, projectID, to string) (*relay.TestResult, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, apperr.Validation("test email address is required")
	}
	if !trigger.ValidEmail(to) {
		return nil, apperr.Validation("invalid email address: %s", to)
	}

	if _, err := g.Get(ctx, projectID); err != nil {
		return nil, err
	}

	result, err := g.relay.TestSMTPConfig(ctx, projectID, to)
	if err != nil {
		metrics.IncSMTPConfigOp("test", "error")
		return nil, err
	}
	metrics.IncSMTPConfigOp("test", "ok")
	return result, nil
}

// Redact strips the password.
func Redact(c *models.SMTPConfig) *models.SafeSMTPConfig {
	return c.Redact()
}

func (g *Gate) invalidate(ctx context.Context, projectID string) {
	if err := g.configs.Invalidate(ctx, projectID); err != nil {
		g.logger.Warn("failed to invalidate smtp config cache", "project_id", projectID, "error", err)
	}
}

func toRelay(c *models.SMTPConfig) *relay.SMTPConfig {
	return &relay.SMTPConfig{
		Host:      c.Host,
		Port:      c.Port,
		Secure:    c.Secure,
		Username:  c.Username,
		Password:  c.Password,
		FromEmail: c.FromEmail,
		FromName:  c.FromName,
	}
}
