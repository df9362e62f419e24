package publishers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"SocialPublisher/models"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// APIError is a non-2xx answer from a platform API.
type APIError struct {
	Platform   models.Platform
	StatusCode int
	Code       int
	Subcode    int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s API error (status %d, code %d): %s", e.Platform.DisplayName(), e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Platform.DisplayName(), e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

func (e *APIError) PlatformCode() int { return e.Code }

// ClientOptions configures the outbound HTTP behaviour shared by adapters.
type ClientOptions struct {
	HTTPClient *http.Client
	// Timeout bounds a single request attempt.
	Timeout time.Duration
	// MaxRetries applies to idempotent requests only.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func (o ClientOptions) normalize() ClientOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 200 * time.Millisecond
	}
	if o.RetryMaxDelay < o.RetryBaseDelay {
		o.RetryMaxDelay = 5 * time.Second
	}
	return o
}

type apiResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type errorParser func(platform models.Platform, status int, body []byte) *APIError

type apiClient struct {
	platform   models.Platform
	httpClient *http.Client
	timeout    time.Duration
	parseError errorParser
	retry      failsafe.Executor[*apiResponse]
}

func newAPIClient(platform models.Platform, opts ClientOptions, parse errorParser) *apiClient {
	opts = opts.normalize()

	policy := retrypolicy.NewBuilder[*apiResponse]().
		HandleIf(func(_ *apiResponse, err error) bool {
			return isTransient(err)
		}).
		WithBackoff(opts.RetryBaseDelay, opts.RetryMaxDelay).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()

	return &apiClient{
		platform:   platform,
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		parseError: parse,
		retry:      failsafe.With[*apiResponse](policy),
	}
}

type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	headers     map[string]string
	// client overrides the default client, e.g. an OAuth1 signing client.
	client *http.Client
}

// get performs an idempotent request, retried on transient failures.
func (c *apiClient) get(ctx context.Context, req request) (*apiResponse, error) {
	req.method = http.MethodGet
	return c.retry.WithContext(ctx).Get(func() (*apiResponse, error) {
		return c.do(ctx, req)
	})
}

// post performs exactly one attempt; publish calls are never replayed.
func (c *apiClient) post(ctx context.Context, req request) (*apiResponse, error) {
	req.method = http.MethodPost
	return c.do(ctx, req)
}

func (c *apiClient) do(ctx context.Context, req request) (*apiResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, err
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	client := c.httpClient
	if req.client != nil {
		client = req.client
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.platform.DisplayName(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s response read failed: %w", c.platform.DisplayName(), err)
	}

	out := &apiResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, c.parseError(c.platform, resp.StatusCode, respBody)
	}
	return out, nil
}

// isTransient reports whether an idempotent call is worth another attempt.
// Rate limits are left to the postponement policy.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
