package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/log"
)

type ctxPrincipalKey struct{}

// principalFromContext returns the authenticated principal stored by
// the auth middleware.
func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey{}).(auth.Principal)
	return p, ok
}

// authMiddleware enforces bearer-token authentication. allowQuery
// additionally accepts ?token= for media endpoints.
func (s *Server) authMiddleware(allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.ExtractToken(r, allowQuery)
			if token == "" {
				log.FromContext(r.Context()).Warn().
					Str(log.FieldEvent, "auth.missing_token").
					Str(log.FieldPath, r.URL.Path).
					Msg("authorization missing")
				writeUnauthorized(w)
				return
			}

			principal, ok := s.verifier.Verify(token)
			if !ok {
				log.FromContext(r.Context()).Warn().
					Str(log.FieldEvent, "auth.invalid_token").
					Str(log.FieldPath, r.URL.Path).
					Msg("invalid api token")
				writeUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), ctxPrincipalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestIDMiddleware assigns each request an id and stores it in the
// context for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

// loggingMiddleware emits one structured entry per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		s.logger.Info().
			Str("method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int("status", sw.status).
			Dur("elapsed", time.Since(start)).
			Str(log.FieldRequestID, log.RequestIDFromContext(r.Context())).
			Msg("request")
	})
}

// corsMiddleware sets permissive cross-origin headers so a browser
// video element on a different origin can read range metadata.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Range, Content-Length, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so SSE streaming works
// through the logging wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
