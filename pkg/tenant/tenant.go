// Package tenant resolves a tenant ID to the tenant's signing metadata and
// keeps the result in a per-tenant TTL cache.
//
// A [Cache] fetches lazily: the first request for a tenant, or the first
// request after its record went stale, asks the [Provider] and replaces the
// whole record on success. A failed fetch leaves any previous record as it
// was. Concurrent resolutions of the same tenant share one provider call.
//
// [SharedProvider] decorates a Provider with a Redis tier so several gateway
// replicas reuse each other's fetches.
package tenant

import (
	"context"
	"time"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

// ErrTenantNotFound is returned when a tenant's metadata could not be
// obtained, for whatever reason.
var ErrTenantNotFound = sserr.New(sserr.CodeNotFoundTenant, "tenant not found")

// Metadata is what a [Provider] returns for a tenant.
type Metadata struct {
	// ID is the tenant ID as the identity provider reports it.
	ID string `json:"id"`

	// Certificate is base64 key material: an X.509 certificate in DER form
	// or a SubjectPublicKeyInfo key, without PEM markers.
	Certificate string `json:"certificate"`

	// Algorithm is the JWS algorithm the tenant signs tokens with.
	Algorithm string `json:"algorithm"`

	// FetchedAt is when the identity provider answered, if the provider
	// knows it. Zero means now.
	FetchedAt time.Time `json:"fetched_at,omitzero"`
}

// Record is a cached tenant entry.
type Record struct {
	TenantID    string
	Certificate string
	Algorithm   string

	// FetchedAt is when the identity provider answered the fetch that
	// produced this record.
	FetchedAt time.Time
}

// Fresh reports whether the record is younger than ttl at now.
func (r Record) Fresh(now time.Time, ttl time.Duration) bool {
	return !r.FetchedAt.IsZero() && now.Sub(r.FetchedAt) < ttl
}

// Provider fetches a tenant's metadata from the identity provider.
type Provider interface {
	FetchTenant(ctx context.Context, tenantID string) (Metadata, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, tenantID string) (Metadata, error)

// FetchTenant calls f.
func (f ProviderFunc) FetchTenant(ctx context.Context, tenantID string) (Metadata, error) {
	return f(ctx, tenantID)
}
