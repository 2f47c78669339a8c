// Package gateway is the outbound client for the MetaMap identity provider.
//
// It fetches a client-credentials token once per token cache lifetime and
// reads verification documents. Every failure is logged and reported to the
// caller as "no data"; nothing here returns a transport error upward.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"simkyc/internal/kyc/metrics"
	"simkyc/internal/kyc/payload"
	"simkyc/pkg/requestcontext"
)

// DefaultTimeout bounds each provider call.
const DefaultTimeout = 30 * time.Second

const maxBodyBytes = 4 << 20

var errNotConfigured = errors.New("metamap credentials are not configured")

// Config holds the provider endpoint and credentials.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// TokenCache stores the bearer token between calls.
type TokenCache interface {
	Get(ctx context.Context) (string, bool)
	Set(ctx context.Context, token string)
}

// Client talks to the provider API.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  TokenCache
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTokenCache replaces the per-instance token cache.
func WithTokenCache(cache TokenCache) Option {
	return func(c *Client) {
		c.tokens = cache
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout is left as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New constructs a Client. Missing credentials are allowed; calls then
// return no data.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: NewMemoryTokenCache(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != "" && c.cfg.BaseURL != ""
}

// ClientID returns the public client id handed to the web SDK.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// GetVerification returns the full verification document, or nil on any
// failure. An empty id returns nil without a network call.
func (c *Client) GetVerification(ctx context.Context, verificationID string) payload.Payload {
	verificationID = strings.TrimSpace(verificationID)
	if verificationID == "" {
		return nil
	}

	ctx, span := otel.Tracer("simkyc/metamap/gateway").Start(ctx, "gateway.GetVerification", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("metamap.verification_id", verificationID))

	token, err := c.Token(ctx)
	if err != nil {
		span.RecordError(err)
		c.logger.WarnContext(ctx, "metamap token unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil
	}

	start := time.Now()
	doc, err := c.fetchVerification(ctx, token, verificationID)
	c.metrics.ObserveProviderLatency("get_verification", time.Since(start))
	if err != nil {
		span.RecordError(err)
		c.logger.WarnContext(ctx, "metamap verification fetch failed",
			"request_id", requestcontext.RequestID(ctx),
			"verification_id", verificationID,
			"error", err,
		)
		return nil
	}
	return doc
}

// Token returns the cached bearer token, fetching one on first use.
// Concurrent callers share a single fetch.
func (c *Client) Token(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(ctx); ok {
		return token, nil
	}
	if !c.Configured() {
		return "", errNotConfigured
	}
	v, err, _ := c.group.Do("token", func() (any, error) {
		if token, ok := c.tokens.Get(ctx); ok {
			return token, nil
		}
		start := time.Now()
		token, err := c.fetchToken(ctx)
		c.metrics.ObserveProviderLatency("token", time.Since(start))
		if err != nil {
			return "", err
		}
		c.tokens.Set(ctx, token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	token := strings.TrimSpace(body.String("access_token"))
	if token == "" {
		return "", errors.New("token response carried no access_token")
	}
	return token, nil
}

func (c *Client) fetchVerification(ctx context.Context, token, verificationID string) (payload.Payload, error) {
	endpoint := c.cfg.BaseURL + "/v2/verifications/" + url.PathEscape(verificationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (payload.Payload, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body payload.Payload
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return nil, fmt.Errorf("decode body: invalid JSON object")
	}
	return body, nil
}
