// Package httpapi exposes the run service over HTTP and WebSocket.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"roastbot/internal/core/domain"
	"roastbot/internal/service"
)

// RunService is the part of the orchestrator the transport needs.
type RunService interface {
	CreateRun(ctx context.Context, req domain.RunRequest) (*domain.RunTicket, error)
	GetRun(ctx context.Context, id string) (domain.RunSnapshot, error)
	ListRuns(ctx context.Context) []domain.RunSnapshot
	CancelRun(ctx context.Context, id string) (domain.RunSnapshot, error)
	Subscribe(ctx context.Context, id string, after uint64) (*service.Subscription, error)
}

// RouterOptions configures Router.
type RouterOptions struct {
	AllowedOrigins []string
	// RunRateLimit caps run creations per client IP per minute. Zero disables it.
	RunRateLimit int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// ArtifactDir is served under /artifacts/ when set.
	ArtifactDir string
	Logger      zerolog.Logger
	Now         func() time.Time
}

// API holds the handlers.
type API struct {
	svc    RunService
	logger zerolog.Logger
	now    func() time.Time
}

// Router builds the HTTP router.
func Router(svc RunService, opts RouterOptions) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	api := &API{svc: svc, logger: opts.Logger, now: opts.Now}

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	r.Get("/health", api.health("healthy"))
	r.Get("/ready", api.health("ready"))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.RunRateLimit > 0 {
			r.Use(httprate.LimitByIP(opts.RunRateLimit, time.Minute))
		}
		r.Post("/run", api.createRun)
	})
	r.Get("/runs", api.listRuns)
	r.Get("/runs/{runID}", api.getRun)
	r.Post("/runs/{runID}/cancel", api.cancelRun)
	r.Get("/stream/{runID}", api.stream)

	if opts.ArtifactDir != "" {
		fs := http.StripPrefix("/artifacts/", http.FileServer(http.Dir(opts.ArtifactDir)))
		r.Method(http.MethodGet, "/artifacts/*", fs)
	}

	return otelhttp.NewHandler(r, "roastbot.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
