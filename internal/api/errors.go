package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"taskdash/internal/store"
	"taskdash/internal/taskservice"
)

const unavailableMessage = "The task service is unavailable. Please try again later."

// failure is the client-facing form of an error.
type failure struct {
	status  int
	code    string
	message string
}

func classify(err error) failure {
	var apiErr *taskservice.APIError
	switch {
	case errors.Is(err, taskservice.ErrAuthRequired):
		return failure{http.StatusUnauthorized, "auth_required", "authentication required"}
	case errors.Is(err, store.ErrDraftNotFound):
		return failure{http.StatusNotFound, "not_found", "This editing session has expired or does not exist."}
	case errors.As(err, &apiErr):
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return failure{http.StatusUnauthorized, "auth_required", apiErr.Error()}
		case http.StatusNotFound:
			return failure{http.StatusNotFound, "not_found", apiErr.Error()}
		default:
			return failure{http.StatusBadGateway, "upstream_error", apiErr.Error()}
		}
	case errors.Is(err, taskservice.ErrUnavailable):
		return failure{http.StatusServiceUnavailable, "upstream_unavailable", unavailableMessage}
	case errors.Is(err, context.DeadlineExceeded):
		return failure{http.StatusGatewayTimeout, "upstream_timeout", unavailableMessage}
	default:
		return failure{http.StatusInternalServerError, "internal_error", "internal error"}
	}
}

func (s *Server) logFailure(r *http.Request, f failure, err error) {
	attrs := []any{"path", r.URL.Path, "status", f.status, "request_id", middleware.GetReqID(r.Context()), "err", err}
	if f.status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
		return
	}
	s.logger.Warn("request failed", attrs...)
}

// writeServiceError maps err onto a JSON error response.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	f := classify(err)
	s.logFailure(r, f, err)
	writeError(w, f.status, f.code, f.message)
}

// renderServiceError maps err onto an error page; missing credentials go to login.
func (s *Server) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	f := classify(err)
	s.logFailure(r, f, err)
	if f.code == "auth_required" {
		s.redirectToLogin(w, r)
		return
	}
	title := "Something went wrong"
	switch f.status {
	case http.StatusNotFound:
		title = "Not found"
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		title = "Service unavailable"
	}
	s.renderError(w, r, f.status, title, f.message)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	data := errorPage{Title: title, Message: message}
	if status == http.StatusUnauthorized {
		data.LoginURL = s.loginURL
	}
	s.renderPage(w, r, status, "error", data)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := s.pages.render(w, status, page, data); err != nil {
		s.logger.Error("render page", "page", page, "request_id", middleware.GetReqID(r.Context()), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
