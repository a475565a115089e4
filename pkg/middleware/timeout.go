package middleware

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds the handler's context. A handler that has not started its
// response by the deadline is answered with 504 and its later writes fail
// with http.ErrHandlerTimeout. One that has started is left to finish.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			gw := &guardedWriter{w: w, header: make(http.Header)}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
			}
			if !gw.expire() {
				<-done
				return
			}
			slog.Warn("request timed out", "method", r.Method, "path", r.URL.Path, "timeout", d)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGatewayTimeout)
			_, _ = w.Write([]byte(`{"error":"request timeout"}`))
		})
	}
}

// guardedWriter hands the response to whichever side claims it first: the
// handler by writing, or the middleware by expiring it. Handler headers stay
// in a private map until the handler claims the response.
type guardedWriter struct {
	w       http.ResponseWriter
	header  http.Header
	mu      sync.Mutex
	started bool
	expired bool
}

func (g *guardedWriter) Header() http.Header { return g.header }

func (g *guardedWriter) claim() bool {
	if g.expired {
		return false
	}
	if !g.started {
		maps.Copy(g.w.Header(), g.header)
		g.started = true
	}
	return true
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claim() {
		g.w.WriteHeader(code)
	}
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.claim() {
		return 0, http.ErrHandlerTimeout
	}
	return g.w.Write(b)
}

// expire reports whether the middleware now owns the response.
func (g *guardedWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return false
	}
	g.expired = true
	return true
}
