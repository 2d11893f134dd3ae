package middleware

import (
	"context"

	"connectrpc.com/connect"

	"github.com/mmynk/ubupresent/internal/auth"
	"github.com/mmynk/ubupresent/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PrincipalKey is the context key for storing the authenticated principal.
const PrincipalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFromContext extracts the caller's identity from the context.
// Returns the zero (anonymous) principal if none was set.
func PrincipalFromContext(ctx context.Context) models.Principal {
	p, _ := ctx.Value(PrincipalKey).(models.Principal)
	return p
}

// RequireAuth returns an interceptor that validates bearer tokens and rejects
// unauthenticated calls to the listed procedures. When no procedures are listed every
// call requires a token. Calls to unlisted procedures are treated as in OptionalAuth.
func RequireAuth(verifier auth.TokenVerifier, procedures ...string) connect.UnaryInterceptorFunc {
	protected := make(map[string]bool, len(procedures))
	for _, p := range procedures {
		protected[p] = true
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			required := len(protected) == 0 || protected[req.Spec().Procedure]

			principal, err := verify(ctx, verifier, req.Header().Get("Authorization"))
			if err != nil && required {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			if err == nil {
				ctx = WithPrincipal(ctx, principal)
			}

			return next(ctx, req)
		}
	}
}

// OptionalAuth returns an interceptor that validates bearer tokens if present, but
// allows requests without authentication. Guests contribute without signing in, while
// signed-in payers are recorded against their identity.
func OptionalAuth(verifier auth.TokenVerifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			// Invalid tokens are ignored; the caller proceeds as a guest.
			if principal, err := verify(ctx, verifier, req.Header().Get("Authorization")); err == nil {
				ctx = WithPrincipal(ctx, principal)
			}
			return next(ctx, req)
		}
	}
}

func verify(ctx context.Context, verifier auth.TokenVerifier, header string) (models.Principal, error) {
	token, err := auth.BearerToken(header)
	if err != nil {
		return models.Principal{}, err
	}
	return verifier.Verify(ctx, token)
}
