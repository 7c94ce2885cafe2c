package tenant

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

const (
	// DefaultSharedTTL is how long a record lives in the shared tier. It
	// must stay below the cache TTL.
	DefaultSharedTTL = 60 * time.Second

	// DefaultKeyPrefix namespaces shared-tier keys.
	DefaultKeyPrefix = "realm-gateway:"
)

// KV is the part of the Redis client the shared tier uses. It is satisfied
// by *redis.Client from pkg/clients/redis.
type KV interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// SharedConfig configures a [SharedProvider].
type SharedConfig struct {
	TTL       time.Duration `json:"ttl" yaml:"ttl" env:"TTL" envDefault:"60s"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX" envDefault:"realm-gateway:"`
}

// SharedProvider looks a tenant up in a shared key-value tier before asking
// the delegate Provider, and publishes what the delegate returns. Errors
// from the shared tier are logged and never fail a fetch on their own.
type SharedProvider struct {
	kv       KV
	delegate Provider
	cfg      SharedConfig
	logger   *slog.Logger
	now      func() time.Time
}

// SharedOption configures a [SharedProvider].
type SharedOption func(*SharedProvider)

// WithSharedClock sets the clock that stamps published entries.
func WithSharedClock(now func() time.Time) SharedOption {
	return func(p *SharedProvider) { p.now = now }
}

// NewSharedProvider wraps delegate with the shared tier kv. A nil logger
// uses slog.Default().
func NewSharedProvider(kv KV, delegate Provider, cfg SharedConfig, logger *slog.Logger, opts ...SharedOption) (*SharedProvider, error) {
	if kv == nil || delegate == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "tenant: shared tier needs a store and a delegate provider")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultSharedTTL
	}
	if cfg.TTL < 0 {
		return nil, sserr.Newf(sserr.CodeValidationRange, "tenant: shared TTL must be positive, got %v", cfg.TTL)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &SharedProvider{kv: kv, delegate: delegate, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FetchTenant implements [Provider].
func (p *SharedProvider) FetchTenant(ctx context.Context, tenantID string) (Metadata, error) {
	key := p.key(tenantID)

	raw, ok, err := p.kv.Lookup(ctx, key)
	switch {
	case err != nil:
		p.logger.WarnContext(ctx, "shared tenant lookup failed, asking identity provider",
			"tenant_id", tenantID,
			"error", err,
		)
	case ok:
		var meta Metadata
		if err := json.Unmarshal([]byte(raw), &meta); err == nil && meta.Certificate != "" {
			return meta, nil
		}
		p.logger.WarnContext(ctx, "discarding malformed shared tenant entry", "tenant_id", tenantID)
	}

	meta, err := p.delegate.FetchTenant(ctx, tenantID)
	if err != nil {
		return Metadata{}, err
	}
	// Entries keep the identity provider's fetch time so a replica that
	// reads one does not restart the record's freshness window.
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = p.now().UTC()
	}

	data, err := json.Marshal(meta)
	if err == nil {
		err = p.kv.Set(ctx, key, data, p.cfg.TTL)
	}
	if err != nil {
		p.logger.WarnContext(ctx, "shared tenant publish failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}
	return meta, nil
}

func (p *SharedProvider) key(tenantID string) string {
	return p.cfg.KeyPrefix + "tenant:" + tenantID
}
