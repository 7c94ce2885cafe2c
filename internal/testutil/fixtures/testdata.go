// Package fixtures provides shared test data constants for the
// realm-gateway test suite.
package fixtures

// Tenant identities used across tenant, token and gateway tests.
const (
	// TenantID is the default tenant (realm) for unit tests.
	TenantID = "test1"

	// AltTenantID is a second tenant for isolation tests.
	AltTenantID = "test2"

	// UnknownTenantID is a tenant the fake identity provider does not know.
	UnknownTenantID = "ghost"

	// TestSubject is the subject claim of test tokens.
	TestSubject = "user-abc-123"
)

// Exchange settings used in mint and gateway tests.
const (
	// SigningKey is a 32-byte HS256 key suitable only for unit tests.
	SigningKey = "0123456789abcdef0123456789abcdef"

	// ExchangeIssuer is the issuer stamped on internal test tokens.
	ExchangeIssuer = "realm-gateway-test"
)

// Configuration snippets used in config loader tests.
const (
	// TestEnvPrefix is the environment variable prefix for config tests.
	TestEnvPrefix = "GATEWAY"

	// TestConfigYAML is a minimal gateway configuration file.
	TestConfigYAML = `listen_addr: ":8000"
upstream_url: "http://upstream.test"
keycloak:
  url: "http://keycloak.test"
exchange:
  signing_key: "0123456789abcdef0123456789abcdef"
`
)
