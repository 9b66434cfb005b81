package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/foxzi/relaydesk/internal/apperr"
	"github.com/foxzi/relaydesk/internal/metrics"
	"github.com/foxzi/relaydesk/internal/ratelimit"
	"github.com/foxzi/relaydesk/internal/relay"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Relay   string `json:"relay,omitempty"`
}

// ErrorResponse is the error response. Kind and Retryable are set for
// classified failures.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

const msgUnexpected = "Something unexpected happened. Please try again."

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.deps.Version,
		Uptime:  time.Since(s.startTime).String(),
	}

	if s.deps.Relay != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if _, err := s.deps.Relay.Health(ctx); err != nil {
			resp.Relay = "unreachable"
		} else {
			resp.Relay = "ok"
		}
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.API.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to encode response", "error", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendServiceError maps a service error onto a status code and a message
// the console can show as is.
func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	metrics.IncAPIErrors(resp.Kind)

	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &exceeded):
		metrics.IncRateLimitExceeded(string(exceeded.Level))
		s.logger.Warn("send rate limit exceeded",
			"path", r.URL.Path,
			"key", exceeded.Key,
			"retry_after", exceeded.RetryAfter,
		)
		retry := int(exceeded.RetryAfter.Seconds() + 0.999)
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	default:
		s.logger.Debug("request rejected",
			"path", r.URL.Path,
			"kind", resp.Kind,
			"error", err,
		)
	}

	s.sendJSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	var relayErr *relay.Error
	var exceeded *ratelimit.ExceededError
	switch {
	case errors.As(err, &exceeded):
		return http.StatusTooManyRequests, ErrorResponse{
			Error:     "Too many send requests. Please try again later.",
			Kind:      "rate_limited",
			Retryable: true,
		}
	case errors.As(err, &relayErr):
		return relayStatus(relayErr.Kind), ErrorResponse{
			Error:     relayErr.Message,
			Kind:      string(relayErr.Kind),
			Retryable: relayErr.Retryable(),
		}
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: apperr.Message(err), Kind: "validation"}
	case errors.Is(err, apperr.ErrNotConfigured):
		return http.StatusNotFound, ErrorResponse{Error: "SMTP is not configured for this project", Kind: "not_configured"}
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: "not_found"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: msgUnexpected, Kind: "internal"}
	}
}

func relayStatus(kind relay.Kind) int {
	switch kind {
	case relay.KindAuthentication:
		return http.StatusUnprocessableEntity
	case relay.KindUnavailable, relay.KindConnectivity:
		return http.StatusServiceUnavailable
	case relay.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
