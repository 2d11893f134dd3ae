package auth

import (
	"context"
	"strings"

	"github.com/mmynk/ubupresent/internal/models"
)

// TokenVerifier turns a bearer token into the caller's identity.
// Hosts sign in with an external identity provider; this service never sees passwords.
// The abstraction allows swapping the HS256 verifier for a JWKS-backed one without
// changing the middleware.
type TokenVerifier interface {
	// Verify returns the principal for a valid token, or an error wrapping
	// ErrInvalidToken.
	Verify(ctx context.Context, token string) (models.Principal, error)
}

// BearerToken extracts the token from an Authorization header value.
// It returns ErrMissingToken for an empty header and ErrInvalidToken for any other
// scheme.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}
	return parts[1], nil
}
