package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
)

const (
	DefaultTimeout      = 8 * time.Second
	defaultMaxBodyBytes = 10 << 20
	userAgent           = "garagedata/1.0"
)

// ErrBodyTooLarge is wrapped when a response exceeds the adapter's body limit.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is what a parser sees of a successful provider response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL is the final request URL after redirects, for resolving relative links.
	URL *url.URL
}

// ResponseParser turns a 2xx response into a payload. It returns
// providers.ErrNoData, providers.ErrArtifactRejected or
// providers.ErrUnexpectedShape (wrapped) to steer classification.
type ResponseParser func(req providers.Request, resp *Response) (models.Payload, error)

// URLBuilder returns the lookup URL for a request.
type URLBuilder func(baseURL string, req providers.Request) (string, error)

// HTTPAdapter wraps HTTP-based vehicle-data providers.
type HTTPAdapter struct {
	id           string
	source       models.Source
	kinds        []models.Kind
	baseURL      string
	apiKey       string
	apiKeyHeader string
	accept       string
	healthPath   string
	client       HTTPDoer
	timeout      time.Duration
	maxBodyBytes int64
	buildURL     URLBuilder
	parser       ResponseParser
	now          func() time.Time
}

// HTTPAdapterConfig configures an HTTP adapter
type HTTPAdapterConfig struct {
	ID      string
	Source  models.Source
	Kinds   []models.Kind
	BaseURL string
	// APIKey is sent in APIKeyHeader (default X-API-Key) when set.
	APIKey       string
	APIKeyHeader string
	Accept       string
	// HealthPath is appended to BaseURL for Health. Empty disables the probe.
	HealthPath   string
	Timeout      time.Duration
	MaxBodyBytes int64
	HTTPClient   HTTPDoer
	BuildURL     URLBuilder
	Parser       ResponseParser
	Now          func() time.Time
}

// New creates an HTTP protocol adapter.
func New(cfg HTTPAdapterConfig) *HTTPAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-API-Key"
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/json"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &HTTPAdapter{
		id:           cfg.ID,
		source:       cfg.Source,
		kinds:        cfg.Kinds,
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		accept:       cfg.Accept,
		healthPath:   cfg.HealthPath,
		client:       selectHTTPClient(cfg),
		timeout:      cfg.Timeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		buildURL:     cfg.BuildURL,
		parser:       cfg.Parser,
		now:          cfg.Now,
	}
}

func selectHTTPClient(cfg HTTPAdapterConfig) HTTPDoer {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}

	return &http.Client{
		Timeout: cfg.Timeout,
	}
}

func (a *HTTPAdapter) ID() string {
	return a.id
}

func (a *HTTPAdapter) Source() models.Source {
	return a.source
}

func (a *HTTPAdapter) Supports(kind models.Kind) bool {
	return slices.Contains(a.kinds, kind)
}

// Fetch performs a lookup via HTTP GET, bounded by the adapter timeout.
func (a *HTTPAdapter) Fetch(ctx context.Context, req providers.Request) (*providers.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	target, err := a.buildURL(a.baseURL, req)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, a.id, "failed to build request url", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, providers.NewProviderError(providers.ErrorInternal, a.id, "failed to create request", err)
	}
	httpReq.Header.Set("Accept", a.accept)
	httpReq.Header.Set("User-Agent", userAgent)
	if a.apiKey != "" {
		httpReq.Header.Set(a.apiKeyHeader, a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, a.transportError(ctx, "failed to execute request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodyBytes+1))
	if err != nil {
		return nil, a.transportError(ctx, "failed to read response", err)
	}

	if perr := a.statusError(resp.StatusCode); perr != nil {
		return nil, perr
	}
	if int64(len(body)) > a.maxBodyBytes {
		return nil, providers.NewProviderError(providers.ErrorContractMismatch, a.id,
			fmt.Sprintf("response exceeds %d bytes", a.maxBodyBytes), ErrBodyTooLarge)
	}

	finalURL := httpReq.URL
	if resp.Request != nil {
		finalURL = resp.Request.URL
	}

	payload, err := a.parser(req, &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        finalURL,
	})
	if err != nil {
		return nil, providers.NewProviderError(
			providers.CategoryForParseError(err),
			a.id,
			"failed to parse response",
			err,
		)
	}

	return &providers.Artifact{
		ProviderID: a.id,
		Source:     a.source,
		Payload:    payload,
		FetchedAt:  a.now(),
		Metadata:   map[string]string{"status": strconv.Itoa(resp.StatusCode)},
	}, nil
}

func (a *HTTPAdapter) statusError(status int) *providers.ProviderError {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return providers.NewProviderError(providers.ErrorAuthentication, a.id,
			fmt.Sprintf("authentication failed: %d", status), nil)
	case status == http.StatusNotFound, status == http.StatusGone:
		return providers.NewProviderError(providers.ErrorNotFound, a.id, "record not found", nil)
	case status == http.StatusTooManyRequests:
		return providers.NewProviderError(providers.ErrorRateLimited, a.id, "rate limit exceeded", nil)
	case status >= 500:
		return providers.NewProviderError(providers.ErrorProviderOutage, a.id,
			fmt.Sprintf("provider unavailable: %d", status), nil)
	case status >= 400:
		return providers.NewProviderError(providers.ErrorBadData, a.id,
			fmt.Sprintf("unexpected status: %d", status), nil)
	}
	return nil
}

func (a *HTTPAdapter) transportError(ctx context.Context, msg string, err error) *providers.ProviderError {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return providers.NewProviderError(providers.ErrorTimeout, a.id, "request timeout", err)
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, a.id, msg, err)
}

// Health checks if the provider is available
func (a *HTTPAdapter) Health(ctx context.Context) error {
	if a.healthPath == "" || a.baseURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+a.healthPath, nil)
	if err != nil {
		return err
	}
	if a.apiKey != "" {
		req.Header.Set(a.apiKeyHeader, a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return providers.NewProviderError(providers.ErrorProviderOutage, a.id, "health check failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providers.NewProviderError(providers.ErrorProviderOutage, a.id,
			fmt.Sprintf("unhealthy status: %d", resp.StatusCode), nil)
	}

	return nil
}
