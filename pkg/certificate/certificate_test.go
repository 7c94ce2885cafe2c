package certificate

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/realm-gateway/internal/testutil"
	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty",
			input: "",
			want:  "-----BEGIN CERTIFICATE-----\n-----END CERTIFICATE-----",
		},
		{
			name:  "short",
			input: "MIIB",
			want:  "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----",
		},
		{
			name:  "exactly one line",
			input: strings.Repeat("a", 64),
			want:  "-----BEGIN CERTIFICATE-----\n" + strings.Repeat("a", 64) + "\n-----END CERTIFICATE-----",
		},
		{
			name:  "wraps at 64",
			input: strings.Repeat("a", 64) + strings.Repeat("b", 10),
			want: "-----BEGIN CERTIFICATE-----\n" + strings.Repeat("a", 64) + "\n" +
				strings.Repeat("b", 10) + "\n-----END CERTIFICATE-----",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Format(tt.input))
		})
	}
}

func TestFormat_LineLengths(t *testing.T) {
	t.Parallel()

	key := testutil.NewTenantKey(t, "test1", "RS256")
	lines := strings.Split(Format(key.Certificate), "\n")
	require.Greater(t, len(lines), 3)

	body := lines[1 : len(lines)-1]
	for i, line := range body[:len(body)-1] {
		assert.Len(t, line, 64, "line %d", i)
	}
	assert.LessOrEqual(t, len(body[len(body)-1]), 64)
	assert.Equal(t, key.Certificate, strings.Join(body, ""))
}

func TestFamilyOf(t *testing.T) {
	t.Parallel()

	for alg, want := range map[string]Family{
		"RS256": FamilyRSA, "RS384": FamilyRSA, "RS512": FamilyRSA,
		"PS256": FamilyRSA, "PS384": FamilyRSA, "PS512": FamilyRSA,
		"ES256": FamilyECDSA, "ES384": FamilyECDSA, "ES512": FamilyECDSA,
		"EdDSA": FamilyEd25519,
	} {
		got, err := FamilyOf(alg)
		require.NoError(t, err, alg)
		assert.Equal(t, want, got, alg)
	}

	for _, alg := range []string{"HS256", "none", "", "rs256", "RSA-OAEP"} {
		_, err := FamilyOf(alg)
		assert.ErrorIs(t, err, ErrUnsupportedAlgorithm, "alg %q", alg)
	}
}

func TestParsePublicKey_FromCertificate(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"RS256", "PS384", "ES256", "ES512", "EdDSA"} {
		t.Run(alg, func(t *testing.T) {
			t.Parallel()
			key := testutil.NewTenantKey(t, "test1", alg)

			pub, err := ParsePublicKey(alg, []byte(Format(key.Certificate)))
			require.NoError(t, err)

			switch alg {
			case "EdDSA":
				assert.IsType(t, ed25519.PublicKey{}, pub)
			case "ES256", "ES512":
				assert.IsType(t, &ecdsa.PublicKey{}, pub)
			default:
				assert.IsType(t, &rsa.PublicKey{}, pub)
			}
		})
	}
}

func TestParsePublicKey_BarePublicKeyUnderCertificateLabel(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"RS256", "ES384", "EdDSA"} {
		key := testutil.NewTenantKey(t, "test1", alg)
		_, err := ParsePublicKey(alg, []byte(Format(key.PublicKey)))
		require.NoError(t, err, alg)
	}
}

func TestParsePublicKey_FamilyMismatch(t *testing.T) {
	t.Parallel()

	ec := testutil.NewTenantKey(t, "test1", "ES256")
	_, err := ParsePublicKey("RS256", []byte(Format(ec.Certificate)))
	assert.ErrorIs(t, err, ErrInvalidKey)

	rsaKey := testutil.NewTenantKey(t, "test1", "RS256")
	_, err = ParsePublicKey("EdDSA", []byte(Format(rsaKey.Certificate)))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestParsePublicKey_Garbage(t *testing.T) {
	t.Parallel()

	_, err := ParsePublicKey("RS256", []byte(Format("bm90IGEga2V5")))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParsePublicKey("EdDSA", []byte("not pem at all"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParsePublicKey("HS256", []byte(Format("x")))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	assert.False(t, sserr.HasCode(err, sserr.CodeValidation))
}
