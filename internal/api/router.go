package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/metrics"
)

// NewRouter creates the checkout-facing router. It carries only what
// checkout calls; operator routes live on NewOperatorRouter.
func NewRouter(h *Handler) http.Handler {
	r := newBaseRouter(h)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/evaluations", h.Evaluate)
		r.Post("/payment-failures", h.RecordPaymentFailure)
	})

	return r
}

// NewOperatorRouter creates the operator router, a mirror of riskctl. It is
// served on its own listener and must not be reachable from checkout.
func NewOperatorRouter(h *Handler) http.Handler {
	r := newBaseRouter(h)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/rules/refresh", h.RefreshRules)

		r.Route("/blacklist", func(r chi.Router) {
			r.Get("/", h.ListBlacklist)
			r.Post("/", h.AddBlacklistEntry)
			r.Get("/history", h.BlacklistHistory)
			r.Delete("/{identifier}", h.DeleteBlacklistEntry)
		})
		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", h.ListReviews)
			r.Get("/history", h.ReviewHistory)
			r.Post("/{id}/decision", h.DecideReview)
		})

		r.Post("/admin/replay", h.Replay)
	})

	return r
}

func newBaseRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	return r
}

// requestLogger emits one slog record per request, counts it by route
// pattern, and puts a request-scoped logger on the context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()

		logging.L(ctx).Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
