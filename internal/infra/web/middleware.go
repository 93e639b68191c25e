package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"membership-checkout/internal/infra/logging"
)

// traceContext seeds the request context with the chi request id so every log
// line of a request carries it.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if tid := middleware.GetReqID(ctx); tid != "" {
			ctx = logging.WithTraceID(ctx, tid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// checkoutContext tags session routes with the checkout id. Mounted inside
// the /{sessionID} subtree, where the URL param is resolved.
func checkoutContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if sid := chi.URLParam(r, "sessionID"); sid != "" {
			ctx = logging.WithCheckoutID(ctx, sid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}
