package taskservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"taskdash/internal/metrics"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// BreakerThreshold is the number of consecutive transport or 5xx failures
	// that opens the circuit. Zero selects the default of 5.
	BreakerThreshold uint32
	// BreakerCooldown is how long the circuit stays open. Zero selects 30s.
	BreakerCooldown time.Duration
}

// Client talks to the Task Management Service. It holds no credentials: the
// bearer token is taken from the context of every call.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a client for the service at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("task service url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(0).
		SetLogger(restyLogger{opts.Logger})

	logger := opts.Logger
	threshold := opts.BreakerThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "task-service",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// The service answered; only transport failures and 5xx count against it.
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		http:    httpClient,
		breaker: breaker,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

type call struct {
	op         string
	method     string
	path       string
	pathParams map[string]string
	query      map[string]string
	body       any
	result     any
}

func (c *Client) do(ctx context.Context, cl call) error {
	token, ok := TokenFromContext(ctx)
	if !ok {
		return ErrAuthRequired
	}

	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.send(ctx, token, cl)
	})
	c.metrics.ObserveUpstream(cl.op, outcome(err), time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, token string, cl call) error {
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token)
	if len(cl.pathParams) > 0 {
		req.SetPathParams(cl.pathParams)
	}
	if len(cl.query) > 0 {
		req.SetQueryParams(cl.query)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}

	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !resp.IsSuccess() {
		message := strings.TrimSpace(resp.String())
		if message == "" {
			message = http.StatusText(resp.StatusCode())
		}
		return &APIError{Op: cl.op, StatusCode: resp.StatusCode(), Message: message}
	}

	if cl.result == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), cl.result); err != nil {
		return fmt.Errorf("decode %s response: %w", cl.op, err)
	}
	return nil
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr):
		return "upstream_error"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
