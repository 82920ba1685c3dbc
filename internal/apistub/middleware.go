package apistub

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const contextKeyUsername contextKey = "username"

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Dur("elapsed", time.Since(start)).
			Msg("stub request")
	})
}

// track counts the request under route and applies any pending FailNext.
func (s *Server) track(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		s.lastHeaders[route] = r.Header.Clone()
		status, fail := s.failNext[route]
		delete(s.failNext, route)
		s.mu.Unlock()

		if fail {
			writeJSONError(w, status, http.StatusText(status))
			return
		}
		next(w, r)
	}
}

func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.requireCSRF || isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("X-CSRFToken")
		if header == "" || header != s.CSRFToken() {
			writeJSONError(w, http.StatusForbidden, "CSRF Failed: CSRF token missing or incorrect.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		username, ok := s.accessUser(r.Header.Get("Authorization"))
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyUsername, username)))
	})
}

func usernameFrom(r *http.Request) string {
	username, _ := r.Context().Value(contextKeyUsername).(string)
	return username
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
