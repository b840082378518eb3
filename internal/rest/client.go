// Package rest implements the authenticated HTTPS API client used around
// the gateway core: endpoint bootstrap before connecting, and outbound
// side-effecting actions (messages, DM channels) on behalf of callbacks.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/chatwire/internal/observability"
)

const defaultBaseURL = "https://discordapp.com/api"

// APIError is returned for any non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Body)
}

// Config configures the API client.
type Config struct {
	BaseURL   string // Default: the public API root.
	Token     string // Bot token, sent as "Bot <token>".
	UserAgent string // Default: "chatwire/1.0".
}

// Client is the authenticated API client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.MetricsCollector
	tracer     trace.Tracer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics attaches the metrics collector.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer attaches an OTel tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(c *Client) { c.tracer = tr }
}

// New creates an API client.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chatwire/1.0"
	}
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one authenticated request and decodes the JSON response into
// out (skipped when out is nil). endpoint is the metrics label, kept
// free of path parameters to bound cardinality.
func (c *Client) do(ctx context.Context, method, path, endpoint string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Correlation-ID", uuid.New().String())

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "rest."+endpoint,
			trace.WithAttributes(
				attribute.String("http.method", method),
				attribute.String("rest.endpoint", endpoint),
			))
		defer span.End()
		req = req.WithContext(ctx)
		defer func() {
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
		}()
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(method, endpoint, 0, start)
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	c.record(method, endpoint, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// Assigned to err so the deferred span closure sees the failure.
		err = &APIError{Status: resp.StatusCode, Body: string(respBody)}
		return err
	}

	if out == nil {
		return nil
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		err = fmt.Errorf("decoding %s response: %w", endpoint, decodeErr)
		return err
	}
	return nil
}

func (c *Client) record(method, endpoint string, status int, start time.Time) {
	if c.metrics == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.metrics.RESTRequestsTotal.WithLabelValues(method, endpoint, label).Inc()
	c.metrics.RESTRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
