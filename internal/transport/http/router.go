package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"banguard/internal/ban/handler"
	"banguard/internal/platform/metrics"
	"banguard/pkg/platform/httputil"
	adminmw "banguard/pkg/platform/middleware/admin"
	"banguard/pkg/platform/middleware/metadata"
	request "banguard/pkg/platform/middleware/request"
	"banguard/pkg/platform/middleware/requesttime"
)

// RouterConfig holds what the router needs besides the ban handler.
type RouterConfig struct {
	AdminToken string
	Logger     *slog.Logger
	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// HTTPMetrics records per-route request metrics when set.
	HTTPMetrics *metrics.HTTP
}

// NewRouter wires every endpoint. Admin commands sit behind the admin token;
// the login gate and health checks do not.
func NewRouter(h *handler.Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.Use(metadata.ForwardedAddress)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h.RegisterGateway(r)

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.AdminToken, cfg.Logger))
		r.Use(request.Actor)
		h.RegisterAdmin(r)
	})
	return r
}
