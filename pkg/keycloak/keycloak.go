// Package keycloak fetches tenant signing metadata from a Keycloak-style
// identity provider, where each tenant is a realm served at
// <base>/auth/realms/<tenant>.
//
// Two document shapes are understood: the dojot realm document
//
//	{"id": "...", "signatureKey": {"certificate": "...", "algorithm": "RS512"}}
//
// and the stock Keycloak realm document
//
//	{"realm": "...", "public_key": "..."}
//
// which carries no algorithm, so [Config.DefaultAlgorithm] applies.
package keycloak

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
	"github.com/StricklySoft/realm-gateway/pkg/metrics"
	"github.com/StricklySoft/realm-gateway/pkg/tenant"
)

const tracerName = "github.com/StricklySoft/realm-gateway/pkg/keycloak"

const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetryDelay     = 5 * time.Second
	DefaultMaxAttempts    = 3
	DefaultAlgorithm      = "RS256"

	maxTenantIDLength    = 255
	maxResponseBodyBytes = 1 << 20
	realmPathPrefix      = "/auth/realms/"
)

// ErrInvalidTenantID is returned, without any network call, for tenant IDs
// that cannot name a realm.
var ErrInvalidTenantID = sserr.New(sserr.CodeValidationFormat, "invalid tenant id")

// ErrMalformedRealm is returned when the realm document cannot be decoded
// or carries no key material.
var ErrMalformedRealm = sserr.New(sserr.CodeValidation, "malformed realm document")

// HTTPClient is the subset of *http.Client the Client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a [Client]. The env tags are relative; the gateway
// nests it under `env:"KEYCLOAK"`.
type Config struct {
	// URL is the identity provider base URL, e.g. http://keycloak:8080.
	URL string `json:"url" yaml:"url" env:"URL" required:"true"`

	// RequestTimeout bounds each attempt.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT" envDefault:"10s"`

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay" env:"RETRY_DELAY" envDefault:"5s"`

	// MaxAttempts counts the first attempt.
	MaxAttempts uint `json:"max_attempts" yaml:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"3"`

	// DefaultAlgorithm applies to realm documents that name no algorithm.
	DefaultAlgorithm string `json:"default_algorithm" yaml:"default_algorithm" env:"DEFAULT_ALGORITHM" envDefault:"RS256"`
}

// Validate fills zero values with defaults and checks the URL.
func (c *Config) Validate() error {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.DefaultAlgorithm == "" {
		c.DefaultAlgorithm = DefaultAlgorithm
	}

	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return sserr.Newf(sserr.CodeValidationFormat, "keycloak: URL must be an absolute http(s) URL, got %q", c.URL)
	}
	if c.RequestTimeout < 0 || c.RetryDelay < 0 {
		return sserr.New(sserr.CodeValidationRange, "keycloak: timeouts must not be negative")
	}
	return nil
}

// Client fetches realm documents. It implements [tenant.Provider] and is
// safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL string
	http    HTTPClient
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

var _ tenant.Provider = (*Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    http.DefaultClient,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchTenant GETs the tenant's realm document, retrying network failures
// and server errors up to MaxAttempts times with a fixed RetryDelay.
// Client errors (4xx) and undecodable documents are not retried.
func (c *Client) FetchTenant(ctx context.Context, tenantID string) (tenant.Metadata, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return tenant.Metadata{}, err
	}

	ctx, span := c.tracer.Start(ctx, "keycloak.FetchTenant",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	realmURL := c.baseURL + realmPathPrefix + url.PathEscape(tenantID)
	start := time.Now()
	attempts := 0

	meta, err := backoff.Retry(ctx, func() (tenant.Metadata, error) {
		attempts++
		return c.fetchOnce(ctx, realmURL, tenantID)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.RetryDelay)),
		backoff.WithMaxTries(c.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.DebugContext(ctx, "retrying identity provider request",
				"tenant_id", tenantID,
				"attempt", attempts,
				"retry_in", next,
				"error", err,
			)
		}),
	)

	span.SetAttributes(attribute.Int("keycloak.attempts", attempts))
	if err != nil {
		c.metrics.IdentityProviderFetch("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return tenant.Metadata{}, err
	}
	c.metrics.IdentityProviderFetch("ok", time.Since(start))
	return meta, nil
}

// fetchOnce performs one attempt. Errors that must not be retried are
// wrapped with backoff.Permanent.
func (c *Client) fetchOnce(ctx context.Context, realmURL, tenantID string) (tenant.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, realmURL, nil)
	if err != nil {
		return tenant.Metadata{}, backoff.Permanent(sserr.Wrap(err, sserr.CodeInternal,
			"keycloak: failed to create realm request"))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tenant.Metadata{}, sserr.Wrapf(err, sserr.CodeUnavailableIdentityProvider,
			"keycloak: realm request for %q failed", tenantID)
	}
	defer func() { _ = resp.Body.Close() }()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode >= 500:
		return tenant.Metadata{}, sserr.Newf(sserr.CodeUnavailableIdentityProvider,
			"keycloak: realm endpoint returned status %d for %q", resp.StatusCode, tenantID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return tenant.Metadata{}, backoff.Permanent(sserr.Newf(sserr.CodeNotFoundTenant,
			"keycloak: realm endpoint returned status %d for %q", resp.StatusCode, tenantID))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return tenant.Metadata{}, sserr.Wrapf(err, sserr.CodeUnavailableIdentityProvider,
			"keycloak: failed to read realm document for %q", tenantID)
	}

	meta, err := c.decode(body, tenantID)
	if err != nil {
		return tenant.Metadata{}, backoff.Permanent(err)
	}
	return meta, nil
}

type realmDocument struct {
	ID           string `json:"id"`
	Realm        string `json:"realm"`
	PublicKey    string `json:"public_key"`
	SignatureKey *struct {
		Certificate string `json:"certificate"`
		Algorithm   string `json:"algorithm"`
	} `json:"signatureKey"`
}

func (c *Client) decode(body []byte, tenantID string) (tenant.Metadata, error) {
	var doc realmDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return tenant.Metadata{}, sserr.Wrapf(err, ErrMalformedRealm.Code,
			"keycloak: cannot decode realm document for %q", tenantID)
	}

	meta := tenant.Metadata{ID: doc.ID}
	if meta.ID == "" {
		meta.ID = doc.Realm
	}

	switch {
	case doc.SignatureKey != nil && doc.SignatureKey.Certificate != "":
		meta.Certificate = doc.SignatureKey.Certificate
		meta.Algorithm = doc.SignatureKey.Algorithm
	case doc.PublicKey != "":
		meta.Certificate = doc.PublicKey
	default:
		return tenant.Metadata{}, sserr.Validationf("keycloak: realm document for %q carries no key material", tenantID)
	}
	if meta.Algorithm == "" {
		meta.Algorithm = c.cfg.DefaultAlgorithm
	}
	return meta, nil
}

// ValidateTenantID rejects IDs that are empty, "." or "..", longer than 255
// bytes, or contain a slash.
func ValidateTenantID(tenantID string) error {
	switch {
	case tenantID == "", tenantID == ".", tenantID == "..":
		return sserr.Newf(ErrInvalidTenantID.Code, "keycloak: invalid tenant id %q", tenantID)
	case len(tenantID) > maxTenantIDLength:
		return sserr.Newf(ErrInvalidTenantID.Code, "keycloak: tenant id longer than %d bytes", maxTenantIDLength)
	case strings.ContainsRune(tenantID, '/'):
		return sserr.Newf(ErrInvalidTenantID.Code, "keycloak: tenant id %q contains '/'", tenantID)
	}
	return nil
}
