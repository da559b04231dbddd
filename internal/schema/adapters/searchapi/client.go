// Package searchapi is the HTTP adapter for the search service management API.
package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/metrics"
	"github.com/indexvault-go/pkg/ratelimit"
	"github.com/indexvault-go/pkg/resilience"
	"github.com/indexvault-go/pkg/telemetry"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// APIVersion is the management API version every request is pinned to. It is
// set at build time:
//
//	go build -ldflags "-X github.com/indexvault-go/internal/schema/adapters/searchapi.APIVersion=2024-07-01"
var APIVersion = "2024-07-01"

const maxResponseSize = 16 << 20

var _ ports.ServiceGateway = (*Client)(nil)

// Config contains configuration for the client
type Config struct {
	Endpoint          string
	APIKey            string
	RequestTimeout    time.Duration
	Retry             resilience.RetryConfig
	RequestsPerSecond float64
	Burst             int
	BreakerEnabled    bool
	Breaker           resilience.CircuitBreakerConfig
	// Transport overrides the base HTTP transport.
	Transport http.RoundTripper
}

// Client talks to the management API of one search service.
type Client struct {
	endpoint       string
	apiKey         string
	requestTimeout time.Duration
	httpClient     *http.Client
	limiter        ratelimit.RateLimiter
	breaker        *resilience.CircuitBreaker
	retry          resilience.RetryConfig
	telemetry      *telemetry.Telemetry
	logger         logger.Logger
}

// transportError is a failure to get any HTTP answer at all.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func NewClient(config Config, log logger.Logger, tel *telemetry.Telemetry) (*Client, error) {
	u, err := url.Parse(config.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid search endpoint %q", config.Endpoint)
	}
	if config.APIKey == "" {
		return nil, errors.New("search admin key is empty")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if tel == nil {
		tel = telemetry.NewNop()
	}

	base := config.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c := &Client{
		endpoint:       strings.TrimRight(config.Endpoint, "/"),
		apiKey:         config.APIKey,
		requestTimeout: config.RequestTimeout,
		httpClient: &http.Client{
			Transport: &loggingTransport{next: base, logger: log},
		},
		limiter:   ratelimit.NewTokenBucketLimiter(config.RequestsPerSecond, config.Burst),
		retry:     config.Retry,
		telemetry: tel,
		logger:    log.With("endpoint", u.Host),
	}

	if config.BreakerEnabled {
		breaker := config.Breaker
		if breaker.Name == "" {
			breaker = resilience.DefaultCircuitBreakerConfig("search-api")
		}
		// Client errors such as 404 say nothing about the health of the service.
		breaker.IsSuccessful = func(err error) bool {
			return err == nil || !isRetryable(err)
		}
		breaker.OnStateChange = func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}
		c.breaker = resilience.NewCircuitBreaker(breaker)
	}

	return c, nil
}

// NewGatewayFactory returns a factory that builds clients sharing config but
// pointing at different endpoints.
func NewGatewayFactory(config Config, log logger.Logger, tel *telemetry.Telemetry) ports.GatewayFactory {
	return func(endpoint, apiKey string) (ports.ServiceGateway, error) {
		cfg := config
		cfg.Endpoint = endpoint
		cfg.APIKey = apiKey
		return NewClient(cfg, log, tel)
	}
}

// ListIndexNames returns the names of all indexes on the service.
func (c *Client) ListIndexNames(ctx context.Context) ([]string, error) {
	query := url.Values{}
	query.Set("$select", "name")
	next := c.url("/indexes", query)

	var names []string
	for next != "" {
		data, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}

		var page struct {
			Value []struct {
				Name string `json:"name"`
			} `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("failed to decode index list: %w", err)
		}
		for _, v := range page.Value {
			names = append(names, v.Name)
		}
		next = page.NextLink
	}

	c.logger.Debug("Listed indexes", "count", len(names))
	return names, nil
}

// GetDefinition fetches the full definition of an index.
func (c *Client) GetDefinition(ctx context.Context, name string) (index.Definition, error) {
	data, err := c.do(ctx, http.MethodGet, c.url(indexPath(name), nil), nil)
	if err != nil {
		var rerr *index.RemoteError
		if errors.As(err, &rerr) && rerr.Status == http.StatusNotFound {
			return nil, &index.NotFoundError{Resource: "index", Name: name}
		}
		return nil, err
	}

	def, err := index.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode definition of %q: %w", name, err)
	}
	return def, nil
}

// CreateOrReplace creates the index or replaces the schema of an existing index
// with the same name.
func (c *Client) CreateOrReplace(ctx context.Context, def index.Definition) error {
	name := def.Name()
	if name == "" {
		return errors.New("definition has no name")
	}

	body, err := def.Encode()
	if err != nil {
		return err
	}

	// Analyzer, tokenizer and filter changes on an existing index are only
	// accepted when the service may take it offline briefly.
	query := url.Values{}
	query.Set("allowIndexDowntime", "true")
	_, err = c.do(ctx, http.MethodPut, c.url(indexPath(name), query), body)
	return err
}

func (c *Client) url(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", APIVersion)
	return c.endpoint + path + "?" + query.Encode()
}

func indexPath(name string) string {
	return "/indexes/" + url.PathEscape(name)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "searchapi "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)),
	)

	retry := c.retry
	retry.ShouldRetry = isRetryable
	retry.DelayHint = retryAfter
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.RecordGatewayRetry(method)
		c.logger.Warn("Retrying search API request",
			"method", method,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	}

	data, err := resilience.RetryWithResult(ctx, retry, func() ([]byte, error) {
		return c.attempt(ctx, method, target, body)
	})
	telemetry.EndSpan(span, err)
	return data, err
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.breaker == nil {
		return c.send(ctx, method, target, body)
	}

	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, method, target, body)
	})
}

func (c *Client) send(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	reqCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPut {
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordGatewayRequest(method, "error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	metrics.RecordGatewayRequest(method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transportError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &index.RemoteError{
			Status:     resp.StatusCode,
			Body:       string(data),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return data, nil
}

// isRetryable reports whether a failed request may succeed when repeated.
func isRetryable(err error) bool {
	var rerr *index.RemoteError
	if errors.As(err, &rerr) {
		return resilience.IsRetryableHTTPStatus(rerr.Status)
	}
	var terr *transportError
	return errors.As(err, &terr)
}

func retryAfter(err error) time.Duration {
	var rerr *index.RemoteError
	if errors.As(err, &rerr) {
		return rerr.RetryAfter
	}
	return 0
}

// parseRetryAfter accepts both delta-seconds and HTTP-date values.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
