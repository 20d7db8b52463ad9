// Package authjwt verifies bearer JWTs on inbound requests. Token issuance
// is out of scope (spec §1 "Deliberately out of scope"); this package only
// consumes tokens minted by an external identity provider.
package authjwt

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
)

// Claims is the subset of the token this core cares about.
type Claims struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the verified identity attached to a request context.
type Principal struct {
	UserID      string
	WorkspaceID string
	Token       string
}

// Verifier validates bearer tokens against a shared secret.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier builds a Verifier. issuer/audience may be empty to skip those checks.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses and validates an `Authorization: Bearer <token>` header value.
func (v *Verifier) Verify(authorizationHeader string) (Principal, error) {
	token := strings.TrimPrefix(authorizationHeader, "Bearer ")
	if token == authorizationHeader || token == "" {
		return Principal{}, apperr.New(apperr.AuthRequired, "missing bearer token")
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.AuthRequired, err, "invalid bearer token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, apperr.New(apperr.AuthRequired, "invalid bearer token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, apperr.New(apperr.AuthRequired, "token missing subject")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Principal{}, apperr.New(apperr.AuthRequired, "unexpected token issuer")
	}
	if v.audience != "" && !containsAudience(claims.RegisteredClaims.Audience, v.audience) {
		return Principal{}, apperr.New(apperr.AuthRequired, "unexpected token audience")
	}

	return Principal{UserID: claims.Subject, WorkspaceID: claims.WorkspaceID, Token: token}, nil
}

func containsAudience(audience jwt.ClaimStrings, want string) bool {
	for _, a := range audience {
		if a == want {
			return true
		}
	}
	return false
}
