package httpsrv

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hashmap-kz/pgreplmon/internal/httpsrv/controller"
	"github.com/hashmap-kz/pgreplmon/internal/httpsrv/middleware"
	"github.com/hashmap-kz/pgreplmon/internal/httpsrv/service"
	"github.com/hashmap-kz/pgreplmon/internal/snapshot"
)

type HTTPHandlersOpts struct {
	Store       *snapshot.Store
	SelfMetrics prometheus.Gatherer
	Verbose     bool
	// RateLimit is requests per second across all endpoints; 0 disables it.
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
}

func InitHTTPHandlers(opts *HTTPHandlersOpts) http.Handler {
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	l = l.With("component", "rest-api")

	svc := service.NewMonitorService(&service.MonitorServiceOpts{
		Store:       opts.Store,
		SelfMetrics: opts.SelfMetrics,
	})
	ctrl := controller.NewController(svc, l)

	// init middlewares
	safeMiddleware := middleware.SafeHandlerMiddleware{Logger: l}
	loggingMiddleware := middleware.LoggingMiddleware{
		Logger:  l,
		Verbose: opts.Verbose,
	}
	wrap := middleware.Chain(
		safeMiddleware.Middleware,
		loggingMiddleware.Middleware,
	)

	// /metrics stays outside the limiter so scrapes always succeed.
	limit := func(h http.HandlerFunc) http.Handler { return h }
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		rateLimitMiddleware := middleware.RateLimiterMiddleware{
			Limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		}
		limit = func(h http.HandlerFunc) http.Handler { return rateLimitMiddleware.Middleware(h) }
	}

	// Exact path lookup. http.ServeMux would redirect non-canonical paths
	// such as "//health" instead of answering 404.
	routes := map[string]http.Handler{
		"/health":  limit(ctrl.HealthHandler),
		"/ready":   limit(ctrl.ReadyHandler),
		"/live":    limit(ctrl.LiveHandler),
		"/metrics": http.HandlerFunc(ctrl.MetricsHandler),
	}
	notFound := limit(ctrl.NotFoundHandler)

	return wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		notFound.ServeHTTP(w, r)
	}))
}
