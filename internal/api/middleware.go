package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"taskdash/internal/taskservice"
)

// tokenFromRequest returns the caller's bearer token from the Authorization
// header or, failing that, the auth cookie.
func tokenFromRequest(r *http.Request, cookieName string) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if token := strings.TrimSpace(auth[len("Bearer "):]); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// withToken attaches the caller's token to the request context. It is read
// again on every request and never cached.
func (s *Server) withToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := tokenFromRequest(r, s.cookieName); token != "" {
			r = r.WithContext(taskservice.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

// requireAPIToken rejects API calls that carry no token.
func (s *Server) requireAPIToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := taskservice.TokenFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "auth_required", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePageToken sends callers without a token to the login page.
func (s *Server) requirePageToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := taskservice.TokenFromContext(r.Context()); !ok {
			s.redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if s.loginURL == "" {
		s.renderError(w, r, http.StatusUnauthorized, "Sign in required", "You need to sign in to view this page.")
		return
	}
	target, err := url.Parse(s.loginURL)
	if err != nil {
		s.renderError(w, r, http.StatusUnauthorized, "Sign in required", "You need to sign in to view this page.")
		return
	}
	q := target.Query()
	q.Set("next", r.URL.RequestURI())
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// instrument counts served requests by method and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, status)
	})
}
