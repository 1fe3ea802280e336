package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcplist/directory/internal/identity"
	"github.com/mcplist/directory/pkg/health"
	"github.com/mcplist/directory/pkg/middleware"
)

// RouterConfig carries the router's operational settings.
type RouterConfig struct {
	CORS              middleware.CORSConfig
	PprofAllowedCIDRs []string
}

// NewRouter creates a chi router with all directory routes registered.
// limiter may be nil to disable rate limiting of mutations.
func NewRouter(
	reviewService ReviewService,
	voteService VoteService,
	verifier *identity.Verifier,
	limiter *middleware.RateLimiter,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.PrometheusMetrics("directory"))
	r.Use(identity.Middleware(verifier, logger))
	r.Use(middleware.RequestLogger(logger))

	// Operational endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	limit := func(next http.Handler) http.Handler { return next }
	if limiter != nil {
		limit = limiter.Middleware(callerKey, logger)
	}

	reviewHandler := NewReviewHandler(reviewService, logger)
	voteHandler := NewVoteHandler(voteService, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/", reviewHandler.List)
			r.Get("/self", reviewHandler.GetOwn)
			r.With(limit).Post("/", reviewHandler.Submit)
			r.With(limit).Delete("/", reviewHandler.Delete)
		})

		r.Route("/votes", func(r chi.Router) {
			r.Get("/", voteHandler.Counts)
			r.Get("/self", voteHandler.UserVote)
			r.With(limit).Post("/", voteHandler.Cast)
		})
	})

	return r
}
