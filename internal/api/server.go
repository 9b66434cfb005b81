package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzi/relaydesk/internal/attachment"
	"github.com/foxzi/relaydesk/internal/catalog"
	"github.com/foxzi/relaydesk/internal/config"
	"github.com/foxzi/relaydesk/internal/delivery"
	"github.com/foxzi/relaydesk/internal/metrics"
	"github.com/foxzi/relaydesk/internal/ratelimit"
	"github.com/foxzi/relaydesk/internal/relay"
	"github.com/foxzi/relaydesk/internal/smtpconfig"
)

// RelayHealth reports whether the relay answers.
type RelayHealth interface {
	Health(ctx context.Context) (*relay.HealthResponse, error)
}

// Deps are the services behind the API.
type Deps struct {
	Catalog     *catalog.Service
	Attachments *attachment.Service
	Delivery    *delivery.Service
	SMTP        *smtpconfig.Gate
	Relay       RelayHealth
	Limiter     *ratelimit.Limiter
	Metrics     *metrics.Metrics
	Version     string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.Config
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.deps.Metrics != nil {
		s.router.Use(metrics.HTTPMiddleware)
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	if s.deps.Metrics != nil && s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.userMiddleware)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleProjectsList)
			r.Post("/", s.handleProjectsCreate)
			r.Get("/{projectID}", s.handleProjectsGet)
			r.Put("/{projectID}", s.handleProjectsUpdate)
			r.Delete("/{projectID}", s.handleProjectsDelete)

			r.Get("/{projectID}/templates", s.handleTemplatesList)
			r.Post("/{projectID}/templates", s.handleTemplatesCreate)
			r.Get("/{projectID}/attachments", s.handleAttachmentsList)
		})

		r.Route("/templates/{templateID}", func(r chi.Router) {
			r.Get("/", s.handleTemplatesGet)
			r.Put("/", s.handleTemplatesUpdate)
			r.Delete("/", s.handleTemplatesDelete)
			r.Post("/preview", s.handleTemplatePreview)
			r.Post("/trigger-url", s.handleTemplateTriggerURL)
		})

		r.Post("/email/send", s.handleSend)

		r.Route("/attachments", func(r chi.Router) {
			r.Post("/upload", s.handleAttachmentsUpload)
			r.Get("/{attachmentID}", s.handleAttachmentsGet)
			r.Get("/{attachmentID}/download", s.handleAttachmentsDownload)
			r.Delete("/{attachmentID}", s.handleAttachmentsDelete)
		})

		r.Route("/smtp-config/{projectID}", func(r chi.Router) {
			r.Get("/", s.handleSMTPConfigGet)
			r.Post("/", s.handleSMTPConfigSet)
			r.Delete("/", s.handleSMTPConfigDelete)
			r.Post("/test", s.handleSMTPConfigTest)
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
