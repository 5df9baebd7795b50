// Package api provides the wire types of the georouter HTTP service and a client for it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/router"
)

const (
	defaultURL        = "http://127.0.0.1:8080"
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 1 * time.Second
	defaultVersion    = "dev"
)

// Client encapsulates the HTTP client for talking to a georouter service
type Client struct {
	httpClient *http.Client
	url        string
	maxRetries int
	retryDelay time.Duration
	version    string
	logLevel   logging.LogLevel
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithURL sets the base URL of the service
func WithURL(url string) ClientOption {
	return func(c *Client) {
		c.url = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets a custom timeout for HTTP requests
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of retry attempts for idempotent requests
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryDelay sets the initial delay between retries
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = delay
	}
}

// WithVersion sets the version string for the User-Agent header
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// WithLogLevel sets the log level for the client
func WithLogLevel(logLevel logging.LogLevel) ClientOption {
	return func(c *Client) {
		c.logLevel = logLevel
	}
}

// NewClient creates a new API client with the given options
func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		url:        defaultURL,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		version:    defaultVersion,
		logLevel:   logging.LogLevelError,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Error represents a structured error from the API client
type Error struct {
	StatusCode int
	Retriable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("API error: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// isRetriableStatusCode determines if an HTTP status code should trigger a retry
func isRetriableStatusCode(statusCode int) bool {
	return statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		statusCode >= 500
}

// AddServer registers a server with the remote router
func (c *Client) AddServer(ctx context.Context, name string, lat, lon float64) (router.Server, error) {
	var server router.Server
	body := AddServerRequest{Name: name, Latitude: &lat, Longitude: &lon}
	if err := c.do(ctx, http.MethodPost, "/servers", body, &server); err != nil {
		return router.Server{}, err
	}
	return server, nil
}

// Servers lists the remote registry in insertion order
func (c *Client) Servers(ctx context.Context) ([]router.Server, error) {
	var servers []router.Server
	if err := c.do(ctx, http.MethodGet, "/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// RouteRequest routes a request on the remote router. The error wraps
// router.ErrEmptyRegistry when the remote registry is empty.
func (c *Client) RouteRequest(ctx context.Context, requestID int, origin string, lat, lon float64) (*router.Decision, error) {
	var decision router.Decision
	body := RouteRequest{RequestID: &requestID, Origin: origin, Latitude: &lat, Longitude: &lon}
	if err := c.do(ctx, http.MethodPost, "/route", body, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// Summary fetches aggregate statistics. The error wraps router.ErrEmptyHistory
// when nothing has been routed yet.
func (c *Client) Summary(ctx context.Context) (*router.Summary, error) {
	var summary router.Summary
	if err := c.do(ctx, http.MethodGet, "/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// do sends a request and decodes the JSON response into out.
// Only GET requests are retried: routing is not idempotent.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	maxRetries := c.maxRetries
	if method != http.MethodGet {
		maxRetries = 0
	}

	if c.logLevel <= logging.LogLevelDebug {
		log.Printf("%s %s%s (max retries: %d)", method, c.url, path, maxRetries)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			if c.logLevel <= logging.LogLevelWarning {
				log.Printf("Retrying API request (attempt %d/%d) after %v delay", attempt+1, maxRetries+1, delay)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if c.logLevel <= logging.LogLevelError {
					log.Printf("API request cancelled: %v", ctx.Err())
				}
				return ctx.Err()
			}
		}

		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}

		lastErr = err

		var apiErr *Error
		if errors.As(err, &apiErr) && !apiErr.Retriable {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.logLevel <= logging.LogLevelWarning {
			log.Printf("Retriable error on attempt %d: %v", attempt+1, err)
		}
	}

	if maxRetries == 0 {
		return lastErr
	}
	if c.logLevel <= logging.LogLevelError {
		log.Printf("API request failed after %d attempts: %v", maxRetries+1, lastErr)
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}

// doOnce performs a single attempt
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reqBody)
	if err != nil {
		return &Error{
			Retriable: false,
			Err:       fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("User-Agent", fmt.Sprintf("georouter/%s", c.version))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.logLevel <= logging.LogLevelError {
			log.Printf("HTTP request failed: %v", err)
		}
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.logLevel <= logging.LogLevelDebug {
		log.Printf("Received HTTP %d response", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return &Error{
			StatusCode: resp.StatusCode,
			Retriable:  false,
			Err:        fmt.Errorf("unexpected content-type: %s (expected application/json)", contentType),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			StatusCode: resp.StatusCode,
			Retriable:  false,
			Err:        fmt.Errorf("failed to parse API response: %w", err),
		}
	}

	return nil
}

// decodeError maps an error response to an *Error, restoring the router sentinels
func decodeError(resp *http.Response) error {
	var body ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch body.Code {
	case CodeEmptyRegistry:
		return &Error{StatusCode: resp.StatusCode, Err: router.ErrEmptyRegistry}
	case CodeEmptyHistory:
		return &Error{StatusCode: resp.StatusCode, Err: router.ErrEmptyHistory}
	}

	msg := body.Error
	if msg == "" {
		msg = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
	}
	return &Error{
		StatusCode: resp.StatusCode,
		Retriable:  isRetriableStatusCode(resp.StatusCode),
		Err:        errors.New(msg),
	}
}
