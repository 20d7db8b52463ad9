package authjwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	v := NewVerifier(testSecret, "", "")
	signed := signToken(t, testSecret, Claims{
		WorkspaceID: "ws-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	p, err := v.Verify("Bearer " + signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "ws-1", p.WorkspaceID)
	assert.Equal(t, signed, p.Token)
}

func TestVerifyRejectsMissingBearerPrefix(t *testing.T) {
	v := NewVerifier(testSecret, "", "")
	_, err := v.Verify("sometoken")
	require.Error(t, err)
	assert.Equal(t, apperr.AuthRequired, apperr.KindOf(err))
}

func TestVerifyRejectsEmptyHeader(t *testing.T) {
	v := NewVerifier(testSecret, "", "")
	_, err := v.Verify("")
	require.Error(t, err)
	assert.Equal(t, apperr.AuthRequired, apperr.KindOf(err))
}

func TestVerifyRejectsWrongSigningSecret(t *testing.T) {
	v := NewVerifier(testSecret, "", "")
	signed := signToken(t, "different-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})
	_, err := v.Verify("Bearer " + signed)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthRequired, apperr.KindOf(err))
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewVerifier(testSecret, "", "")
	signed := signToken(t, testSecret, Claims{})
	_, err := v.Verify("Bearer " + signed)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthRequired, apperr.KindOf(err))
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	v := NewVerifier(testSecret, "expected-issuer", "")
	signed := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "other-issuer"},
	})
	_, err := v.Verify("Bearer " + signed)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthRequired, apperr.KindOf(err))
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	v := NewVerifier(testSecret, "", "expected-audience")
	signed := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Audience: jwt.ClaimStrings{"other-audience"}},
	})
	_, err := v.Verify("Bearer " + signed)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthRequired, apperr.KindOf(err))
}

func TestVerifyAcceptsMatchingAudience(t *testing.T) {
	v := NewVerifier(testSecret, "", "expected-audience")
	signed := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Audience: jwt.ClaimStrings{"expected-audience"}},
	})
	_, err := v.Verify("Bearer " + signed)
	require.NoError(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret, "", "")
	signed := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	_, err := v.Verify("Bearer " + signed)
	require.Error(t, err)
	assert.Equal(t, apperr.AuthRequired, apperr.KindOf(err))
}
