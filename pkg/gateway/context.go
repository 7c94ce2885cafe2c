package gateway

import "context"

type contextKey int

const tenantKey contextKey = iota

// ContextWithTenant attaches the authorized tenant to ctx. The HTTP
// middleware and gRPC interceptors call it on every forwarded request.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantFromContext returns the tenant attached by [ContextWithTenant].
func TenantFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantKey).(string)
	return tenantID, ok && tenantID != ""
}
