// Package certificate turns the base64 key material an identity provider
// publishes for a tenant into a verification key for that tenant's pinned
// signing algorithm.
package certificate

import (
	"crypto"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

const (
	beginMarker = "-----BEGIN CERTIFICATE-----"
	endMarker   = "-----END CERTIFICATE-----"

	// lineWidth is the PEM body line length.
	lineWidth = 64
)

// ErrUnsupportedAlgorithm is returned for algorithm names that do not name
// an asymmetric JWS signing method.
var ErrUnsupportedAlgorithm = sserr.New(sserr.CodeValidationFormat, "unsupported signing algorithm")

// ErrInvalidKey is returned when PEM text cannot be parsed as a key of the
// family the algorithm requires.
var ErrInvalidKey = sserr.New(sserr.CodeValidation, "invalid public key")

// Format wraps base64 key material as a PEM certificate block: the body is
// split into 64-character lines between the BEGIN and END markers. An
// empty input yields the markers with an empty body.
func Format(base64Key string) string {
	var b strings.Builder
	b.Grow(len(base64Key) + len(base64Key)/lineWidth + len(beginMarker) + len(endMarker) + 2)

	b.WriteString(beginMarker)
	b.WriteByte('\n')
	for i := 0; i < len(base64Key); i += lineWidth {
		end := min(i+lineWidth, len(base64Key))
		b.WriteString(base64Key[i:end])
		b.WriteByte('\n')
	}
	b.WriteString(endMarker)
	return b.String()
}

// Family identifies the key type an algorithm verifies with.
type Family string

const (
	FamilyRSA     Family = "RSA"
	FamilyECDSA   Family = "ECDSA"
	FamilyEd25519 Family = "Ed25519"
)

// FamilyOf returns the key family for a JWS algorithm name. HMAC, "none"
// and unknown names return ErrUnsupportedAlgorithm.
func FamilyOf(alg string) (Family, error) {
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
		return FamilyRSA, nil
	case "ES256", "ES384", "ES512":
		return FamilyECDSA, nil
	case "EdDSA":
		return FamilyEd25519, nil
	default:
		return "", sserr.Newf(sserr.CodeValidationFormat, "unsupported signing algorithm %q", alg)
	}
}

// ParsePublicKey parses pemText as a verification key for alg. Both X.509
// certificates and bare SubjectPublicKeyInfo keys are accepted regardless
// of the PEM block label, so realms that publish a raw public key under a
// CERTIFICATE label still parse.
func ParsePublicKey(alg string, pemText []byte) (crypto.PublicKey, error) {
	family, err := FamilyOf(alg)
	if err != nil {
		return nil, err
	}

	var key crypto.PublicKey
	switch family {
	case FamilyRSA:
		key, err = jwt.ParseRSAPublicKeyFromPEM(pemText)
	case FamilyECDSA:
		key, err = jwt.ParseECPublicKeyFromPEM(pemText)
	case FamilyEd25519:
		key, err = parseEd25519(pemText)
	}
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeValidation,
			"cannot parse %s public key for %s", family, alg)
	}
	return key, nil
}

// parseEd25519 accepts a bare key like jwt.ParseEdPublicKeyFromPEM and
// falls back to reading the key out of a certificate, which the jwt helper
// does not do for Ed25519.
func parseEd25519(pemText []byte) (crypto.PublicKey, error) {
	key, err := jwt.ParseEdPublicKeyFromPEM(pemText)
	if err == nil {
		return key, nil
	}

	block, _ := pem.Decode(pemText)
	if block == nil {
		return nil, err
	}
	cert, certErr := x509.ParseCertificate(block.Bytes)
	if certErr != nil {
		return nil, err
	}
	edKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not hold an Ed25519 key")
	}
	return edKey, nil
}
