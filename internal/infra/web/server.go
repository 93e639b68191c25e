package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"membership-checkout/internal/usecase"
)

// startRateLimit bounds session starts per user; a stuck client retrying
// Start cannot mint unbounded sessions.
const (
	startRateLimit  = 10
	startRateWindow = time.Minute
)

// Limiter is satisfied by the redis rate limiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	checkout       usecase.CheckoutCoordinator
	limiter        Limiter
	publishableKey string
	log            *zerolog.Logger
}

func NewServer(checkout usecase.CheckoutCoordinator, limiter Limiter, publishableKey string, logger *zerolog.Logger) *Server {
	return &Server{
		checkout:       checkout,
		limiter:        limiter,
		publishableKey: publishableKey,
		log:            logger,
	}
}

// Router assembles the checkout API.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(checkoutContext)
			r.Get("/", s.handleGet)
			r.Post("/submit", s.handleSubmit)
			r.Post("/retry", s.handleRetry)
			r.Post("/resume", s.handleResume)
			r.Post("/cancel", s.handleCancel)
		})
	})

	return r
}

// bearerToken pulls the session credential off the request. Empty when the
// header is missing or malformed; the SessionGuard decides what that means.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
