// Package exchange mints the internal token that replaces a verified
// tenant token before a request is forwarded upstream.
package exchange

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

const (
	DefaultIssuer      = "realm-gateway"
	DefaultTTL         = 15 * time.Minute
	DefaultMintTimeout = 5 * time.Second

	// MinSigningKeyLength is the shortest accepted HS256 key, in bytes.
	MinSigningKeyLength = 32

	// ServiceClaim carries the tenant in minted tokens.
	ServiceClaim = "service"
)

// ErrMintFailed matches every error returned by a Minter in this package.
var ErrMintFailed = sserr.New(sserr.CodeInternalExchange, "token exchange failed")

// Minter produces the internal token for a tenant and claim payload.
type Minter interface {
	Mint(ctx context.Context, tenantID string, payload map[string]any) (string, error)
}

// MinterFunc adapts a function to [Minter].
type MinterFunc func(ctx context.Context, tenantID string, payload map[string]any) (string, error)

// Mint calls f.
func (f MinterFunc) Mint(ctx context.Context, tenantID string, payload map[string]any) (string, error) {
	return f(ctx, tenantID, payload)
}

// Secret is a string type that redacts its value in String, GoString and
// MarshalText so signing keys do not leak into logs or serialized config.
type Secret string

const secretRedacted = "[REDACTED]"

func (s Secret) String() string { return secretRedacted }

func (s Secret) GoString() string { return secretRedacted }

// Value returns the actual secret.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// Config configures an [HMACMinter]. The gateway nests it under
// `env:"EXCHANGE"`.
type Config struct {
	// SigningKey is the HS256 key shared with upstream services.
	SigningKey Secret `json:"signing_key" yaml:"signing_key" env:"SIGNING_KEY" required:"true"`

	// Issuer is the iss claim of minted tokens.
	Issuer string `json:"issuer" yaml:"issuer" env:"ISSUER" envDefault:"realm-gateway"`

	// TTL is the lifetime of minted tokens.
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"TTL" envDefault:"15m"`

	// MintTimeout bounds a single Mint call made by the gateway.
	MintTimeout time.Duration `json:"mint_timeout" yaml:"mint_timeout" env:"MINT_TIMEOUT" envDefault:"5s"`
}

// Validate fills defaults and checks the signing key length.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.MintTimeout == 0 {
		c.MintTimeout = DefaultMintTimeout
	}
	if len(c.SigningKey.Value()) < MinSigningKeyLength {
		return sserr.Newf(sserr.CodeValidationRange,
			"exchange: signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if c.TTL < 0 || c.MintTimeout < 0 {
		return sserr.New(sserr.CodeValidationRange, "exchange: TTL and mint timeout must not be negative")
	}
	return nil
}

// HMACMinter mints HS256 tokens. It is safe for concurrent use.
type HMACMinter struct {
	cfg Config
	now func() time.Time
}

var _ Minter = (*HMACMinter)(nil)

// NewHMACMinter validates cfg and returns a minter.
func NewHMACMinter(cfg Config) (*HMACMinter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HMACMinter{cfg: cfg, now: time.Now}, nil
}

// Mint signs payload with the service, iss, iat, exp and jti claims set by
// the minter, overriding any values payload carries for them.
func (m *HMACMinter) Mint(ctx context.Context, tenantID string, payload map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", sserr.Wrap(err, ErrMintFailed.Code, "exchange: mint aborted")
	}
	if tenantID == "" {
		return "", sserr.New(ErrMintFailed.Code, "exchange: tenant must not be empty")
	}

	now := m.now()
	claims := make(jwt.MapClaims, len(payload)+5)
	for k, v := range payload {
		claims[k] = v
	}
	claims[ServiceClaim] = tenantID
	claims["iss"] = m.cfg.Issuer
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(m.cfg.TTL).Unix()
	claims["jti"] = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.SigningKey.Value()))
	if err != nil {
		return "", sserr.Wrap(err, ErrMintFailed.Code, "exchange: failed to sign internal token")
	}
	return signed, nil
}

// Verify parses a token minted with the same configuration. Upstream
// services sharing the key check internal tokens this way.
func (m *HMACMinter) Verify(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(m.cfg.SigningKey.Value()), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "exchange: invalid internal token")
	}
	return claims, nil
}
