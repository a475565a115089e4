// Package middleware provides the HTTP middleware shared by the lookup and
// import APIs: request IDs, Prometheus metrics and request timeouts.
package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/metrics"
)

// Metrics records every request under its route, or "other" for paths
// outside the API.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.TrackHTTP(r.Method, normalizePath(r.URL.Path))
			rec := &statusRecorder{ResponseWriter: w}
			defer func() { done(rec.code()) }()
			next.ServeHTTP(rec, r)
		})
	}
}

// statusRecorder remembers the first status sent. A response written without
// an explicit WriteHeader counts as 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

var routes = map[string]bool{
	"/api/v1/tm/lookup":        true,
	"/api/v1/tm/backends":      true,
	"/api/v1/tm/import":        true,
	"/api/v1/tm/stats":         true,
	"/api/v1/tm/stats/history": true,
	"/api/v1/cache/stats":      true,
	"/api/v1/cache/invalidate": true,
	"/health/live":             true,
	"/health/ready":            true,
}

// normalizePath keeps label cardinality bounded: anything outside the known
// routes is reported as "other".
func normalizePath(path string) string {
	if routes[path] {
		return path
	}
	return "other"
}

// Chain applies middleware so that the first one listed runs outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
