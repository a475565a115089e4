package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func refused(context.Context) error { return errors.New("connection refused") }

func ready(t *testing.T, c *Checker) (int, Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	return rec.Code, report
}

func TestOptionalFailureDegrades(t *testing.T) {
	c := NewChecker(0)
	c.Critical("backend:local", ok)
	c.Optional("backend:amagama", refused)

	code, report := ready(t, c)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusDown, report.Checks["backend:amagama"].Status)
	assert.Equal(t, "connection refused", report.Checks["backend:amagama"].Error)
	assert.True(t, report.Checks["backend:amagama"].Optional)
}

func TestCriticalFailureIsDown(t *testing.T) {
	c := NewChecker(0)
	c.Critical("corpus", refused)
	c.Optional("backend:amagama", ok)

	code, report := ready(t, c)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, report.Status)
}

func TestProbeDeadline(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Critical("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	report := c.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Checks["slow"].Error, "deadline exceeded")
}

func TestReRegisterReplaces(t *testing.T) {
	c := NewChecker(0)
	c.Critical("redis", refused)
	c.Optional("redis", refused)

	report := c.Check(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(0).LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())
}
