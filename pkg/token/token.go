// Package token verifies inbound bearer tokens against the signing key of
// the tenant that issued them.
//
// The issuer claim is read before the signature is checked, only to pick
// the tenant whose key verifies the token. Nothing read at that stage is
// trusted: a token is authenticated only once [Verifier.Verify] returns
// without error.
package token

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/realm-gateway/pkg/certificate"
	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
	"github.com/StricklySoft/realm-gateway/pkg/tenant"
)

const tracerName = "github.com/StricklySoft/realm-gateway/pkg/token"

// DefaultMaxTokenSize is the largest raw token accepted, in bytes.
const DefaultMaxTokenSize = 8 << 10

var (
	// ErrInvalidToken is returned when the token cannot be decoded or
	// carries no usable issuer.
	ErrInvalidToken = sserr.New(sserr.CodeAuthenticationInvalid, "invalid access token")

	// ErrTenantNotFound is returned when the issuer's tenant cannot be
	// resolved to signing metadata.
	ErrTenantNotFound = sserr.New(sserr.CodeAuthenticationTenant, "tenant not found")

	// ErrSignatureInvalid matches every [*SignatureError].
	ErrSignatureInvalid = sserr.New(sserr.CodeAuthenticationSignature, "token signature invalid")
)

// SignatureError reports a token that failed cryptographic or claim
// verification against its tenant's key. Error returns the verification
// library's message, without error codes.
type SignatureError struct {
	TenantID string
	Err      error
}

func (e *SignatureError) Error() string { return sserr.PublicMessage(e.Err) }

// Unwrap exposes both ErrSignatureInvalid and the library error.
func (e *SignatureError) Unwrap() []error { return []error{ErrSignatureInvalid, e.Err} }

// Resolver yields the signing record of a tenant. *tenant.Cache implements
// it.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (tenant.Record, error)
}

// ResolverFunc adapts a function to [Resolver].
type ResolverFunc func(ctx context.Context, tenantID string) (tenant.Record, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, tenantID string) (tenant.Record, error) {
	return f(ctx, tenantID)
}

// Verified is the result of a successful verification.
type Verified struct {
	TenantID string
	Token    string
	Claims   jwt.MapClaims
}

// Config configures a [Verifier].
type Config struct {
	// ClockSkew is the leeway applied to exp, nbf and iat.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"0s"`

	// MaxTokenSize bounds the raw token length in bytes.
	MaxTokenSize int `json:"max_token_size" yaml:"max_token_size" env:"MAX_TOKEN_SIZE" envDefault:"8192"`
}

// Validate fills defaults and rejects negative values.
func (c *Config) Validate() error {
	if c.MaxTokenSize == 0 {
		c.MaxTokenSize = DefaultMaxTokenSize
	}
	if c.ClockSkew < 0 || c.MaxTokenSize < 0 {
		return sserr.New(sserr.CodeValidationRange, "token: clock skew and max token size must not be negative")
	}
	return nil
}

// Verifier checks bearer tokens. It is safe for concurrent use.
type Verifier struct {
	cfg      Config
	resolver Resolver
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a [Verifier].
type Option func(*Verifier)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// WithClock replaces time.Now for temporal claim checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a Verifier that resolves tenant keys through r.
func NewVerifier(r Resolver, cfg Config, opts ...Option) (*Verifier, error) {
	if r == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "token: resolver must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &Verifier{
		cfg:      cfg,
		resolver: r,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify authenticates raw. Steps run in order and stop at the first
// failure:
//  1. decode without verification and read iss (ErrInvalidToken)
//  2. take the tenant from the last path segment of iss
//  3. resolve the tenant's signing record (ErrTenantNotFound)
//  4. verify signature and temporal claims with the tenant's key, accepting
//     only the tenant's algorithm (*SignatureError)
func (v *Verifier) Verify(ctx context.Context, raw string) (Verified, error) {
	ctx, span := v.tracer.Start(ctx, "token.Verify")
	defer span.End()

	verified, err := v.verify(ctx, raw, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verified{}, err
	}
	return verified, nil
}

func (v *Verifier) verify(ctx context.Context, raw string, span trace.Span) (Verified, error) {
	if raw == "" || len(raw) > v.cfg.MaxTokenSize {
		return Verified{}, ErrInvalidToken
	}

	issuer, err := unverifiedIssuer(raw)
	if err != nil {
		return Verified{}, err
	}

	tenantID := TenantFromIssuer(issuer)
	span.SetAttributes(attribute.String("tenant.id", tenantID))
	// A decodable issuer naming no realm is an unknown tenant, not an
	// undecodable token.
	if tenantID == "" {
		return Verified{}, sserr.Newf(ErrTenantNotFound.Code, "issuer %q names no tenant", issuer)
	}

	rec, err := v.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return Verified{}, sserr.Wrapf(err, ErrTenantNotFound.Code, "tenant %q not found", tenantID)
	}
	span.SetAttributes(attribute.String("token.alg", rec.Algorithm))

	claims, err := v.checkSignature(raw, rec)
	if err != nil {
		v.logger.DebugContext(ctx, "token signature rejected",
			"tenant_id", rec.TenantID,
			"algorithm", rec.Algorithm,
			"error", err,
		)
		return Verified{}, &SignatureError{TenantID: rec.TenantID, Err: err}
	}

	return Verified{TenantID: rec.TenantID, Token: raw, Claims: claims}, nil
}

func (v *Verifier) checkSignature(raw string, rec tenant.Record) (jwt.MapClaims, error) {
	key, err := certificate.ParsePublicKey(rec.Algorithm, []byte(certificate.Format(rec.Certificate)))
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{rec.Algorithm}),
		jwt.WithLeeway(v.cfg.ClockSkew),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("token is invalid")
	}
	return claims, nil
}

// unverifiedIssuer decodes raw without checking its signature and returns
// a non-empty string iss claim.
func unverifiedIssuer(raw string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", sserr.Wrap(err, ErrInvalidToken.Code, ErrInvalidToken.Message)
	}
	issuer, ok := claims["iss"].(string)
	if !ok || issuer == "" {
		return "", sserr.New(ErrInvalidToken.Code, "access token has no issuer")
	}
	return issuer, nil
}

// TenantFromIssuer returns the last non-empty path segment of issuer, so
// "https://idp/auth/realms/acme/" yields "acme". It returns "" when no
// segment remains.
func TenantFromIssuer(issuer string) string {
	issuer = strings.TrimRight(issuer, "/")
	if i := strings.LastIndexByte(issuer, '/'); i >= 0 {
		return issuer[i+1:]
	}
	return issuer
}
