// Package factset provides a client for a FactSet-style reference and
// pricing API
package factset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/models"
)

const (
	DefaultBaseURL = "https://api.factset.com"
	DefaultTimeout = 30 * time.Second

	profilesPath = "/content/security-reference/v1/profiles"
	pricesPath   = "/content/prices/v1/calculations"
	officersPath = "/content/people/v1/company-officers"
)

// Client implements interfaces.ReferenceProvider over HTTP. Rate limiting
// belongs to the caller.
type Client struct {
	baseURL    string
	username   string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger

	mu   sync.Mutex
	jobs map[string][]models.Identifier // pending job id -> requested identifiers
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new client authenticating with username and API key
func NewClient(username, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		username: username,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: common.NewSilentLogger(),
		jobs:   make(map[string][]models.Identifier),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error. StatusCode 0 means the request never
// produced a response.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("FactSet request failed: %s (endpoint: %s)", e.Message, e.Endpoint)
	}
	return fmt.Sprintf("FactSet API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Transient reports whether retrying may succeed: transport failures and
// server errors are transient, other statuses are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// Is matches models.ErrNotFound for 404 responses
func (e *APIError) Is(target error) bool {
	return target == models.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// ThrottleError is returned for HTTP 429. RetryAfter is the advertised
// wait, zero when the provider gave none.
type ThrottleError struct {
	RetryAfter time.Duration
	Endpoint   string
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("FactSet rate limit exceeded (retry after %s, endpoint: %s)", e.RetryAfter, e.Endpoint)
}

// Transient is always true for throttling
func (e *ThrottleError) Transient() bool { return true }

// ThrottleWait returns the advertised wait
func (e *ThrottleError) ThrottleWait() time.Duration { return e.RetryAfter }

// do performs an authenticated request and decodes a 200 or 202 response
// into result. It returns the status code and headers on success.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, result interface{}) (int, http.Header, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("url", c.baseURL+path).Msg("FactSet API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, &APIError{Message: err.Error(), Endpoint: path}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, resp.Header, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Endpoint:   path,
		}
	default:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, resp.Header, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
			Endpoint:   path,
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, resp.Header, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, resp.Header, nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Waits too long for a time.Duration saturate at its maximum.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		ns := secs * float64(time.Second)
		switch {
		case math.IsNaN(ns) || ns <= 0:
			return 0
		case ns >= float64(math.MaxInt64):
			return time.Duration(math.MaxInt64)
		}
		return time.Duration(ns)
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Compile-time check
var _ interfaces.ReferenceProvider = (*Client)(nil)
