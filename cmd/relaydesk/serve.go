package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/relaydesk/internal/api"
	"github.com/foxzi/relaydesk/internal/attachment"
	"github.com/foxzi/relaydesk/internal/blob"
	"github.com/foxzi/relaydesk/internal/cache"
	"github.com/foxzi/relaydesk/internal/catalog"
	"github.com/foxzi/relaydesk/internal/config"
	"github.com/foxzi/relaydesk/internal/db"
	"github.com/foxzi/relaydesk/internal/delivery"
	"github.com/foxzi/relaydesk/internal/metrics"
	"github.com/foxzi/relaydesk/internal/models"
	"github.com/foxzi/relaydesk/internal/otp"
	"github.com/foxzi/relaydesk/internal/ratelimit"
	"github.com/foxzi/relaydesk/internal/relay"
	"github.com/foxzi/relaydesk/internal/repository"
	"github.com/foxzi/relaydesk/internal/smtpconfig"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the console API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx, logger); err != nil {
		return err
	}

	store, closeStore, err := openBlobStore(cfg.Attachments)
	if err != nil {
		return err
	}
	defer closeStore()

	smtpCache, err := openSMTPCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer smtpCache.Close()

	projects := repository.NewProjectRepository(database.DB)
	templates := repository.NewTemplateRepository(database.DB)
	client := relay.NewClient(cfg.Relay.BaseURL, cfg.Relay.APIKey, cfg.Relay.Timeout, logger.With("component", "relay"))

	cat := catalog.NewService(projects, templates, logger.With("component", "catalog"))
	attachments := attachment.NewService(
		repository.NewAttachmentRepository(database.DB),
		projects,
		store,
		nil,
		attachment.Options{
			MaxFiles:           cfg.Attachments.MaxFiles,
			MaxFileSize:        cfg.Attachments.MaxFileSize,
			FetchTimeout:       cfg.Attachments.FetchTimeout,
			ResolveConcurrency: cfg.Attachments.ResolveConcurrency,
		},
		logger.With("component", "attachment"),
	)
	gate := smtpconfig.NewGate(
		repository.NewSMTPConfigRepository(database.DB),
		projects,
		client,
		smtpCache,
		cfg.Cache.TTL,
		smtpconfig.NewSealer(cfg.SecretKey()),
		logger.With("component", "smtpconfig"),
	)
	if cfg.SMTP.SecretKey == "" {
		logger.Warn("smtp.secret_key is not set, SMTP passwords are stored unsealed")
	}

	var (
		limiter  *ratelimit.Limiter
		throttle delivery.Throttle
	)
	if cfg.API.SendRatePerMinute > 0 || cfg.API.UserSendRatePerMinute > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			ProjectPerMinute: max(cfg.API.SendRatePerMinute, 0),
			UserPerMinute:    cfg.API.UserSendRatePerMinute,
			Burst:            cfg.API.SendBurst,
		})
		defer limiter.Stop()
		throttle = limiter
	}

	deps := api.Deps{
		Catalog:     cat,
		Attachments: attachments,
		Delivery: delivery.NewService(cat, attachments, client, otp.NewGenerator("relaydesk"), throttle,
			cfg.Relay.BaseURL, logger.With("component", "delivery")),
		SMTP:    gate,
		Relay:   client,
		Limiter: limiter,
		Version: version,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		go m.Run(ctx, 15*time.Second)
		deps.Metrics = m
	}

	server := api.NewServer(cfg, deps, logger.With("component", "api"))

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openBlobStore returns the configured attachment store. The inline
// backend returns a nil store.
func openBlobStore(cfg config.AttachmentsConfig) (blob.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendBolt:
		store, err := blob.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open attachment store: %w", err)
		}
		return store, func() { store.Close() }, nil
	case config.BackendS3:
		store, err := blob.NewS3Store(blob.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create attachment store: %w", err)
		}
		return store, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func openSMTPCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache[models.SMTPConfig], error) {
	if cfg.Backend != config.CacheRedis {
		return cache.NewMemory[models.SMTPConfig](cfg.TTL), nil
	}

	client, err := cache.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return cache.NewRedis[models.SMTPConfig](client, "relaydesk:smtp:", cfg.TTL), nil
}
