// Package auth defines the identity-verification boundary of the relay.
//
// The gateway extracts a bearer credential from the upgrade request and
// asks a Verifier to turn it into an Identity. In strict mode a failure
// rejects the upgrade; in development mode the fixed DevIdentity is used
// instead.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Identity is a verified principal attached to a connection.
type Identity struct {
	// UID is the stable user identifier issued by the verifier.
	UID string

	// Dev marks the fixed development-bypass principal.
	Dev bool
}

// DevIdentity is the sentinel principal used when strict authentication
// is disabled and no valid credential was presented.
var DevIdentity = Identity{UID: "dev-local", Dev: true}

// ErrUnauthorized is returned when a credential is missing.
var ErrUnauthorized = errors.New("auth: missing credential")

// ErrInvalidToken is returned when a credential fails verification.
var ErrInvalidToken = errors.New("auth: invalid credential")

// Verifier validates a bearer credential against an identity service.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// TokenFromRequest extracts the bearer credential from r: the "token"
// query parameter (WebSocket upgrade path) wins, then the Authorization
// header. Returns "" if neither is present.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// StatusCode maps an auth error to an HTTP status.
// Returns (status, true) for auth errors, (0, false) otherwise.
func StatusCode(err error) (int, bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, true
	default:
		return 0, false
	}
}

// StaticVerifier accepts exactly one pre-shared token. Useful for tests
// and single-tenant deployments without an identity service.
type StaticVerifier struct {
	// Token is the accepted credential.
	Token string

	// UID is the identity issued for the accepted credential.
	UID string
}

// Verify implements Verifier.
func (v StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	if token != v.Token {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UID: v.UID}, nil
}
