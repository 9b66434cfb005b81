package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/relaydesk/internal/metrics"
	"github.com/foxzi/relaydesk/internal/ratelimit"
)

// UserHeader carries the authenticated console user.
const UserHeader = "X-User-ID"

type ctxKey int

const userIDKey ctxKey = iota

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware checks API key authentication
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.API.APIKey == "" {
			// No API key configured, allow all
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			auth = r.Header.Get("X-API-Key")
		}
		auth = strings.TrimPrefix(auth, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(auth), []byte(s.config.API.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			metrics.IncAPIErrors("unauthorized")
			s.sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// userMiddleware requires the user header and stores it in the context
func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			s.sendError(w, http.StatusUnauthorized, UserHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// allowSend applies the send limits to a request that bypasses the
// delivery service. It writes a 429 response and returns false when a
// limit is exceeded.
func (s *Server) allowSend(w http.ResponseWriter, r *http.Request, projectID string) bool {
	if s.deps.Limiter == nil {
		return true
	}

	err := s.deps.Limiter.Check(r.Context(), &ratelimit.Request{ProjectID: projectID, UserID: userID(r)})
	if err != nil {
		s.sendServiceError(w, r, err)
		return false
	}
	return true
}
