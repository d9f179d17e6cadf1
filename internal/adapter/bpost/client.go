package bpost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/couchcryptid/bpost-geocoder/internal/domain"
	"github.com/couchcryptid/bpost-geocoder/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	providerName = "bpost"

	// LegacyEndpoint is the public production validateAddresses endpoint.
	LegacyEndpoint = "https://webservices-pub.bpost.be/ws/ExternalMailingAddressProofingCSREST_v1/address/validateAddresses"

	apiKeyHeader     = "x-api-key"
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
)

// HTTPDoer is the transport the client sends requests through.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client. The zero value targets LegacyEndpoint without
// an API key.
type Options struct {
	Endpoint string
	APIKey   string

	// RequireAPIKey makes Geocode fail with invalid credentials, before any
	// request is built, when APIKey is empty.
	RequireAPIKey bool

	// HTTPClient overrides the default client built by NewHTTPClient from
	// Timeout. An injected doer must not follow redirects: a 3xx reply has to
	// reach the client to be reported as an invalid server response.
	HTTPClient HTTPDoer
	Timeout    time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Clock   clockwork.Clock
}

// Client implements domain.Provider against the bpost address validation
// service. It is safe for concurrent use if its HTTPDoer is.
type Client struct {
	endpoint      string
	apiKey        string
	requireAPIKey bool
	httpClient    HTTPDoer
	clock         clockwork.Clock
	metrics       *observability.Metrics
	logger        *slog.Logger
}

var _ domain.Provider = (*Client)(nil)

// NewClient creates a bpost client.
func NewClient(opts Options) *Client {
	c := &Client{
		endpoint:      opts.Endpoint,
		apiKey:        opts.APIKey,
		requireAPIKey: opts.RequireAPIKey,
		httpClient:    opts.HTTPClient,
		clock:         opts.Clock,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = LegacyEndpoint
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = NewHTTPClient(timeout, nil)
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// NewHTTPClient returns an *http.Client that hands redirects back to the
// caller instead of following them. A nil transport uses http.DefaultTransport.
func NewHTTPClient(timeout time.Duration, transport http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Name returns the provenance tag stamped on every address.
func (c *Client) Name() string {
	return providerName
}

// Geocode validates an address and returns the matches bpost reports, in
// response order. Only Belgian addresses can match.
func (c *Client) Geocode(ctx context.Context, q domain.GeocodeQuery) ([]domain.Address, error) {
	text := strings.TrimSpace(q.Text)

	if addr, err := netip.ParseAddr(text); err == nil && addr.Zone() == "" {
		return nil, c.fail("forward", domain.NewUnsupportedOperation(providerName,
			"IP addresses are not supported, only street addresses"))
	}
	if text == "" {
		return nil, c.fail("forward", domain.NewInvalidArgument(providerName, "address cannot be empty"))
	}
	if c.requireAPIKey && c.apiKey == "" {
		return nil, c.fail("forward", domain.NewInvalidCredentials(providerName, c.endpoint, 0))
	}

	locale, ok := normalizeLocale(q.Locale)
	if !ok {
		c.logger.Debug("ignoring unparseable locale", "locale", q.Locale)
	}

	payload, err := json.Marshal(buildRequest(q, locale))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, c.fail("forward", err)
	}

	env, err := decodeResponse(body)
	if err != nil {
		return nil, c.fail("forward", domain.NewInvalidServerResponse(providerName, c.endpoint, 0, err))
	}

	addresses := toAddresses(env, providerName)
	if len(addresses) == 0 {
		c.observe("forward", "empty")
	} else {
		c.observe("forward", "success")
	}
	return addresses, nil
}

// Reverse always fails: bpost has no coordinate lookup.
func (c *Client) Reverse(_ context.Context, _ domain.ReverseQuery) ([]domain.Address, error) {
	return nil, c.fail("reverse", domain.NewUnsupportedOperation(providerName,
		"reverse geocoding is not supported"))
}

// post sends payload and returns the non-empty body of a successful reply.
func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.GeocodeAPIDuration.WithLabelValues("forward").Observe(c.clock.Since(start).Seconds())
	}
	if err != nil {
		return nil, domain.NewInvalidServerResponse(providerName, c.endpoint, 0, err)
	}
	defer resp.Body.Close()

	if geoErr := domain.ClassifyHTTPStatus(providerName, c.endpoint, resp.StatusCode); geoErr != nil {
		c.logger.Warn("bpost API error", "status", resp.StatusCode, "kind", geoErr.Kind)
		return nil, geoErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewInvalidServerResponse(providerName, c.endpoint, resp.StatusCode,
			fmt.Errorf("read body: %w", err))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, domain.NewEmptyResponse(providerName, c.endpoint)
	}
	return body, nil
}

func (c *Client) fail(method string, err error) error {
	c.observe(method, "error")
	if c.metrics != nil {
		c.metrics.GeocodeErrors.WithLabelValues(domain.KindOf(err).String()).Inc()
	}
	return err
}

func (c *Client) observe(method, outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeRequests.WithLabelValues(method, outcome).Inc()
	}
}
