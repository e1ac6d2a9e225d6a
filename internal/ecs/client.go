package ecs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/metrics"
)

const (
	// DefaultMaxRetries is the total number of attempts per request.
	DefaultMaxRetries = 3

	attemptTimeout = 300 * time.Second
	maxDrainBytes  = 64 << 10
)

// Client sends requests to the management API with a bounded retry budget.
// Every failure, whatever its kind, consumes one attempt and the identical
// request is resent immediately.
type Client struct {
	http *http.Client
	log  *logger.Logger
}

type Option func(*Client) error

func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		http: &http.Client{Timeout: attemptTimeout},
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithHTTPClient uses a copy of hc. The per-attempt timeout is always reset
// to 300s.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		cp := *hc
		cp.Timeout = attemptTimeout
		c.http = &cp
		return nil
	}
}

// WithTLSConfig verifies the server against the system pool plus the PEM
// bundle in caFile, or skips verification entirely when insecure is set.
func WithTLSConfig(caFile string, insecure bool) Option {
	return func(c *Client) error {
		tlsConfig, err := loadTLSConfig(caFile, insecure)
		if err != nil {
			return err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		c.http = &http.Client{Transport: transport, Timeout: attemptTimeout}
		return nil
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// Send performs req until a response with status < 300 arrives or
// maxRetries attempts were made. A non-positive maxRetries means
// DefaultMaxRetries. The caller owns the returned response body.
func (c *Client) Send(ctx context.Context, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	req = req.WithContext(ctx)
	step := stepName(req)
	target := req.URL.Redacted()

	var (
		lastStatus int
		lastErr    error
		attempts   int
	)
	for attempts < maxRetries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, target, err)
		}
		attempts++

		attemptReq, err := rewind(req, attempts)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(attemptReq)
		if err != nil {
			lastStatus, lastErr = 0, err
			metrics.HTTPAttempts.WithLabelValues(step, metrics.OutcomeError).Inc()
			c.log.Warnw("http_attempt_failed",
				"method", req.Method, "url", target,
				"attempt", attempts, "max_attempts", maxRetries, "err", err)
			continue
		}
		if resp.StatusCode < 300 {
			metrics.HTTPAttempts.WithLabelValues(step, metrics.OutcomeSuccess).Inc()
			c.log.Debugw("http_attempt_succeeded",
				"method", req.Method, "url", target, "attempt", attempts, "status", resp.StatusCode)
			return resp, nil
		}

		lastStatus, lastErr = resp.StatusCode, nil
		drain(resp.Body)
		metrics.HTTPAttempts.WithLabelValues(step, metrics.OutcomeFailure).Inc()
		c.log.Warnw("http_attempt_failed",
			"method", req.Method, "url", target,
			"attempt", attempts, "max_attempts", maxRetries, "status", resp.StatusCode)
	}

	return nil, &RequestExhaustedError{
		Method:     req.Method,
		URL:        target,
		Attempts:   attempts,
		LastStatus: lastStatus,
		Err:        lastErr,
	}
}

// rewind returns the request for the given attempt number. Requests with a
// body get a fresh copy of it on every attempt after the first.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("%s %s: request body cannot be replayed", req.Method, req.URL.Redacted())
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("%s %s: rewind body: %w", req.Method, req.URL.Redacted(), err)
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

// drain lets the transport reuse the connection of a rejected response.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	_ = body.Close()
}

// stepName turns "/vdc/events" into "vdc_events" for metric labels.
func stepName(req *http.Request) string {
	p := strings.Trim(req.URL.Path, "/")
	if p == "" {
		return "root"
	}
	return strings.ReplaceAll(p, "/", "_")
}
