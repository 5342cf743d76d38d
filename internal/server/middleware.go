package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoinelm/listful/internal/metrics"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserID returns the authenticated user id from the request context.
func UserID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(userIDKey).(int64)
	return id, ok
}

// UserResolver maps an API token to a user id, provisioning on first use.
type UserResolver interface {
	UserIDForToken(token string) (int64, error)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withAuth requires a bearer token and resolves it to a user id.
func withAuth(users UserResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "Authentication required"})
			return
		}

		userID, err := users.UserIDForToken(strings.TrimSpace(token))
		if err != nil {
			log.Error().Err(err).Msg("failed to resolve user token")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "server_error"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withObservability logs each request and records HTTP metrics.
func withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Str("remoteAddr", r.RemoteAddr).
			Msg("http request")

		if metrics.HTTPRequestsTotal != nil {
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration.Seconds())
		}
	})
}
