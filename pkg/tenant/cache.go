package tenant

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
	"github.com/StricklySoft/realm-gateway/pkg/metrics"
)

const tracerName = "github.com/StricklySoft/realm-gateway/pkg/tenant"

// shardCount is the number of independently locked partitions.
const shardCount = 32

const (
	// DefaultTTL is how long a record stays fresh.
	DefaultTTL = 180 * time.Second

	// DefaultFetchTimeout bounds a single provider fetch, retries included.
	DefaultFetchTimeout = 30 * time.Second
)

// CacheConfig configures a [Cache]. The env tags are relative; the gateway
// nests it under `env:"CACHE"`.
type CacheConfig struct {
	// TTL is how long a record is served without refetching.
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"TTL" envDefault:"180s"`

	// FetchTimeout bounds one provider fetch. The fetch runs detached from
	// the requesting caller's cancellation.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" env:"FETCH_TIMEOUT" envDefault:"30s"`

	// MaxEntries bounds the number of records. Zero means unbounded. When
	// set, each shard holds at most ceil(MaxEntries/32) records and evicts
	// stale records first, then the oldest.
	MaxEntries int `json:"max_entries" yaml:"max_entries" env:"MAX_ENTRIES"`
}

// DefaultCacheConfig returns the default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:          DefaultTTL,
		FetchTimeout: DefaultFetchTimeout,
	}
}

// Validate checks the configuration, filling zero durations with defaults.
func (c *CacheConfig) Validate() error {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.TTL < 0 {
		return sserr.Newf(sserr.CodeValidationRange, "tenant: cache TTL must be positive, got %v", c.TTL)
	}
	if c.FetchTimeout < 0 {
		return sserr.Newf(sserr.CodeValidationRange, "tenant: fetch timeout must be positive, got %v", c.FetchTimeout)
	}
	if c.MaxEntries < 0 {
		return sserr.Newf(sserr.CodeValidationRange, "tenant: max entries must not be negative, got %d", c.MaxEntries)
	}
	return nil
}

type shard struct {
	mu      sync.RWMutex
	records map[string]Record
}

// Cache is a sharded TTL cache of tenant records. It is safe for concurrent
// use. Resolutions of different tenants never block on each other beyond a
// shard lock held for a map access; resolutions of the same stale tenant
// collapse into one provider call.
type Cache struct {
	provider Provider
	cfg      CacheConfig
	perShard int

	shards [shardCount]shard
	flight singleflight.Group

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// Option configures a [Cache].
type Option func(*Cache)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Cache) { c.metrics = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a Cache in front of provider.
func NewCache(provider Provider, cfg CacheConfig, opts ...Option) (*Cache, error) {
	if provider == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "tenant: provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		provider: provider,
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	if cfg.MaxEntries > 0 {
		c.perShard = (cfg.MaxEntries + shardCount - 1) / shardCount
	}
	for i := range c.shards {
		c.shards[i].records = make(map[string]Record)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resolve returns a fresh record for tenantID, fetching it from the provider
// when the cached record is absent or stale. A failed fetch returns an error
// matching [ErrTenantNotFound] and does not touch the cached record.
func (c *Cache) Resolve(ctx context.Context, tenantID string) (Record, error) {
	ctx, span := c.tracer.Start(ctx, "tenant.Resolve",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	if rec, ok := c.fresh(tenantID); ok {
		span.SetAttributes(attribute.Bool("tenant.cache_hit", true))
		c.metrics.TenantLookup(metrics.LookupHit)
		return rec, nil
	}
	span.SetAttributes(attribute.Bool("tenant.cache_hit", false))

	ch := c.flight.DoChan(tenantID, func() (any, error) {
		return c.refresh(ctx, tenantID)
	})

	select {
	case res := <-ch:
		span.SetAttributes(attribute.Bool("tenant.shared_fetch", res.Shared))
		if res.Err != nil {
			c.metrics.TenantLookup(metrics.LookupError)
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			return Record{}, res.Err
		}
		c.metrics.TenantLookup(metrics.LookupMiss)
		return res.Val.(Record), nil
	case <-ctx.Done():
		// The fetch carries on for the other waiters and the next request.
		err := sserr.Wrapf(ctx.Err(), sserr.CodeNotFoundTenant,
			"tenant %q: resolution abandoned", tenantID)
		c.metrics.TenantLookup(metrics.LookupError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Record{}, err
	}
}

// refresh runs inside the single flight for tenantID.
func (c *Cache) refresh(ctx context.Context, tenantID string) (Record, error) {
	// Another flight may have completed between the caller's check and now.
	if rec, ok := c.fresh(tenantID); ok {
		return rec, nil
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	defer cancel()

	meta, err := c.provider.FetchTenant(fetchCtx, tenantID)
	if err != nil {
		c.logger.WarnContext(ctx, "tenant metadata fetch failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return Record{}, sserr.Wrapf(err, sserr.CodeNotFoundTenant, "tenant %q not found", tenantID)
	}

	id := meta.ID
	if id == "" {
		id = tenantID
	}
	fetchedAt := c.now()
	if !meta.FetchedAt.IsZero() && meta.FetchedAt.Before(fetchedAt) {
		fetchedAt = meta.FetchedAt
	}
	rec := Record{
		TenantID:    id,
		Certificate: meta.Certificate,
		Algorithm:   meta.Algorithm,
		FetchedAt:   fetchedAt,
	}
	c.store(tenantID, rec)

	c.logger.DebugContext(ctx, "tenant metadata refreshed",
		"tenant_id", tenantID,
		"algorithm", rec.Algorithm,
	)
	return rec, nil
}

// Peek returns the cached record for tenantID whether or not it is fresh.
func (c *Cache) Peek(tenantID string) (Record, bool) {
	s := c.shardFor(tenantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tenantID]
	return rec, ok
}

// Len returns the number of cached records, stale ones included.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.records)
		s.mu.RUnlock()
	}
	return n
}

func (c *Cache) fresh(tenantID string) (Record, bool) {
	rec, ok := c.Peek(tenantID)
	if !ok || !rec.Fresh(c.now(), c.cfg.TTL) {
		return Record{}, false
	}
	return rec, true
}

func (c *Cache) store(tenantID string, rec Record) {
	s := c.shardFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[tenantID]; !exists && c.perShard > 0 && len(s.records) >= c.perShard {
		c.evictLocked(s)
	}
	s.records[tenantID] = rec
}

// evictLocked makes room for one record: stale records go first, then the
// oldest. Caller holds s.mu.
func (c *Cache) evictLocked(s *shard) {
	now := c.now()
	for id, rec := range s.records {
		if !rec.Fresh(now, c.cfg.TTL) {
			delete(s.records, id)
		}
	}
	if len(s.records) < c.perShard {
		return
	}

	var oldestID string
	var oldest time.Time
	first := true
	for id, rec := range s.records {
		if first || rec.FetchedAt.Before(oldest) {
			oldestID, oldest, first = id, rec.FetchedAt, false
		}
	}
	delete(s.records, oldestID)
}

func (c *Cache) shardFor(tenantID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	return &c.shards[h.Sum32()%shardCount]
}
