package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// TenantKey is a tenant's signing key pair together with the self-signed
// certificate an identity provider would publish for it.
type TenantKey struct {
	// TenantID is the realm the key belongs to.
	TenantID string

	// Algorithm is the JWS algorithm the tenant signs with.
	Algorithm string

	// Signer is the private key.
	Signer crypto.Signer

	// Certificate is the base64 DER certificate, without PEM markers.
	Certificate string

	// PublicKey is the base64 DER SubjectPublicKeyInfo, without PEM markers.
	PublicKey string
}

// NewTenantKey generates a key pair for alg and a self-signed certificate
// for tenantID. Supported algorithms are RS*, PS*, ES256/384/512 and EdDSA.
func NewTenantKey(t testing.TB, tenantID, alg string) *TenantKey {
	t.Helper()

	var signer crypto.Signer
	var err error
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
		signer, err = rsa.GenerateKey(rand.Reader, 2048)
	case "ES256":
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		signer, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		signer, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case "EdDSA":
		_, signer, err = ed25519.GenerateKey(rand.Reader)
	default:
		t.Fatalf("NewTenantKey: unsupported algorithm %q", alg)
	}
	require.NoError(t, err, "generate %s key", alg)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: tenantID},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), signer)
	require.NoError(t, err, "create certificate")

	spki, err := x509.MarshalPKIXPublicKey(signer.Public())
	require.NoError(t, err, "marshal public key")

	return &TenantKey{
		TenantID:    tenantID,
		Algorithm:   alg,
		Signer:      signer,
		Certificate: base64.StdEncoding.EncodeToString(der),
		PublicKey:   base64.StdEncoding.EncodeToString(spki),
	}
}

// Issuer returns the iss claim the identity provider at baseURL stamps on
// tokens of this tenant.
func (k *TenantKey) Issuer(baseURL string) string {
	return baseURL + "/auth/realms/" + k.TenantID
}

// CertificatePEM returns the certificate as a PEM block.
func (k *TenantKey) CertificatePEM(t testing.TB) []byte {
	t.Helper()
	der, err := base64.StdEncoding.DecodeString(k.Certificate)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// Sign signs claims with the tenant key using its algorithm.
func (k *TenantKey) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	return k.SignWith(t, k.Algorithm, claims)
}

// SignWith signs claims with the tenant key under an explicit algorithm
// name, which may differ from the tenant's pinned one.
func (k *TenantKey) SignWith(t testing.TB, alg string, claims jwt.MapClaims) string {
	t.Helper()
	method := jwt.GetSigningMethod(alg)
	require.NotNil(t, method, "unknown signing method %q", alg)
	signed, err := jwt.NewWithClaims(method, claims).SignedString(k.Signer)
	require.NoError(t, err, "sign token")
	return signed
}

// Claims returns a valid claim set for this tenant: issuer, subject and a
// one-hour lifetime.
func (k *TenantKey) Claims(baseURL, subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": k.Issuer(baseURL),
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}
