package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var (
	uuidPattern         = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	attachmentIDPattern = regexp.MustCompile(`^[0-9]{13}_[0-9a-z]+$`)
)

// HTTPMiddleware records request count, latency and error class for every
// request. It is a no-op while no global Metrics is set.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Global()
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		path := normalizePath(r)

		m.APIRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(code)).Inc()
		m.APIRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

		if code >= 400 {
			m.APIErrorsTotal.WithLabelValues(categorizeStatus(code)).Inc()
		}
	})
}

// normalizePath prefers the chi route pattern and falls back to masking ids
func normalizePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	parts := strings.Split(r.URL.Path, "/")
	for i, part := range parts {
		if uuidPattern.MatchString(part) || attachmentIDPattern.MatchString(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// categorizeStatus maps an HTTP status to an error class label
func categorizeStatus(status int) string {
	switch {
	case status == http.StatusGatewayTimeout:
		return "relay_timeout"
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return "relay_error"
	case status >= 500:
		return "server_error"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status == http.StatusUnprocessableEntity:
		return "smtp_auth"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusBadRequest:
		return "bad_request"
	case status >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
