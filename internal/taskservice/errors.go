package taskservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthRequired is returned before any I/O when the call carries no token.
	ErrAuthRequired = errors.New("authentication required")
	// ErrUnavailable wraps transport failures and an open circuit.
	ErrUnavailable = errors.New("task service unavailable")
)

// APIError is any non-2xx answer from the task service.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Failed to %s: %s", strings.ReplaceAll(e.Op, "_", " "), e.Message)
}

// IsNotFound reports whether err is a 404 from the task service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token attached by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, _ := ctx.Value(tokenKey{}).(string)
	token = strings.TrimSpace(token)
	return token, token != ""
}
