package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banguard/internal/ban/handler"
	banmetrics "banguard/internal/ban/metrics"
	"banguard/internal/ban/models"
	platformmetrics "banguard/internal/platform/metrics"
)

type stubConsole struct {
	lastAdmin string
	lastLogin models.Identity
}

func (c *stubConsole) Ban(context.Context, string, string, string) (string, error) {
	return "Banned", nil
}
func (c *stubConsole) Unban(context.Context, string) (string, error) { return "Unbanned", nil }
func (c *stubConsole) Kick(context.Context, string, string) (string, error) {
	return "Kicked", nil
}
func (c *stubConsole) TempBan(_ context.Context, admin, _, _ string) (string, bool, error) {
	c.lastAdmin = admin
	return "confirm", false, nil
}
func (c *stubConsole) ReleaseTempBan(context.Context, string) (string, error) {
	return "Released", nil
}
func (c *stubConsole) Reload(context.Context) (string, error)  { return "Reloaded", nil }
func (c *stubConsole) ListBanned(context.Context) []string     { return nil }
func (c *stubConsole) ListTempBanned(context.Context) []string { return nil }
func (c *stubConsole) IsProtected(string) bool                 { return false }
func (c *stubConsole) Login(_ context.Context, id models.Identity) (bool, string) {
	c.lastLogin = id
	return false, ""
}

func newTestRouter(t *testing.T, gatherer prometheus.Gatherer) (http.Handler, *stubConsole) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	console := &stubConsole{}
	h := handler.New(console, nil, logger)
	cfg := RouterConfig{AdminToken: "token", Logger: logger, Gatherer: gatherer}
	if reg, ok := gatherer.(*prometheus.Registry); ok {
		cfg.HTTPMetrics = platformmetrics.NewHTTP(reg)
	}
	return NewRouter(h, cfg), console
}

func TestRouter(t *testing.T) {
	t.Run("health check needs no token", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("inbound request id is echoed", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})

	t.Run("admin routes reject missing token", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bans", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("login gate needs no token", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/gateway/login", strings.NewReader(`{"name":"Steve"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"denied":false}`, rec.Body.String())
	})

	t.Run("operator name falls back to admin header", func(t *testing.T) {
		router, console := newTestRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/admin/tempbans", strings.NewReader(`{"name":"Steve"}`))
		req.Header.Set("X-Admin-Token", "token")
		req.Header.Set("X-Admin-Name", "alice")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "alice", console.lastAdmin)
	})

	t.Run("metrics endpoint serves the registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := banmetrics.New(reg)
		m.IncrementBansCreated()
		router, _ := newTestRouter(t, reg)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "banguard_bans_created_total")
	})

	t.Run("requests are counted by route", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		router, _ := newTestRouter(t, reg)
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, rec.Body.String(), `banguard_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	})

	t.Run("forwarded address fills login identity", func(t *testing.T) {
		router, console := newTestRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/gateway/login", strings.NewReader(`{"name":"Steve"}`))
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		router.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "203.0.113.7", console.lastLogin.Address)
	})

	t.Run("metrics endpoint absent without gatherer", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
