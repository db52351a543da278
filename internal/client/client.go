package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kelsos/quickrank/internal/config"
	"github.com/kelsos/quickrank/internal/logger"
)

// ErrMissingToken is returned before any network call when a request needs a
// bearer credential and none is configured.
var ErrMissingToken = errors.New("missing API token")

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
	Endpoint   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d from %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// APIClient handles all HTTP communication with the ranking API
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures an APIClient.
type Option func(*APIClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *APIClient) {
		c.httpClient = httpClient
	}
}

// WithToken overrides the configured bearer token.
func WithToken(token string) Option {
	return func(c *APIClient) {
		c.token = token
	}
}

// NewAPIClient creates a new API client with the given configuration
func NewAPIClient(cfg *config.Config, opts ...Option) *APIClient {
	c := &APIClient{
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasToken reports whether a bearer credential is configured.
func (c *APIClient) HasToken() bool {
	return c.token != ""
}

// BuildURL constructs a full URL for the given endpoint
func (c *APIClient) BuildURL(endpoint string) string {
	return c.baseURL + endpoint
}

// Get makes a GET request to the specified endpoint
func (c *APIClient) Get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL(endpoint), nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return c.do(req, result)
}

// PostJSON makes an authenticated POST request with a JSON body
func (c *APIClient) PostJSON(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	if !c.HasToken() {
		return ErrMissingToken
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BuildURL(endpoint), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

// PostFile uploads the file at path as a multipart form field
func (c *APIClient) PostFile(ctx context.Context, endpoint, field, path string, result interface{}) error {
	if !c.HasToken() {
		return ErrMissingToken
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("error finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BuildURL(endpoint), &buf)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, result)
}

// do is the core HTTP request method
func (c *APIClient) do(req *http.Request, result interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	url := req.URL.String()
	reqID := uuid.NewString()
	start := time.Now()

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Debug("Starting %s request to %s (req %s)", req.Method, url, reqID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Debug("Request to %s failed after %v: %v", url, time.Since(start), err)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug("Request to %s completed in %v with status %d", url, time.Since(start), resp.StatusCode)

	if resp.StatusCode/100 != 2 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(bodyBytes)),
			Endpoint:   req.URL.Path,
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("error decoding response from %s: %w", url, err)
		}
	}

	return nil
}
