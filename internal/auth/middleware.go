package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/model"
)

// Header scheme and the 401 details the middleware can produce.
const (
	Scheme = "Token"

	MsgNotProvided  = "Authentication credentials were not provided."
	MsgNoKey        = "Invalid token header. No credentials provided."
	MsgKeyHasSpaces = "Invalid token header. Token string should not contain spaces."
	MsgInvalidToken = "Invalid token."
	MsgTokenExpired = "Token has expired."
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A package-private type means
// only THIS package can create a key of type contextKey, so no other package
// can read or shadow the authenticated account.
type contextKey string

const accountKey contextKey = "account"

// Authenticator resolves a presented token key to its account.
// It returns an *apperror.AppError wrapping ErrUnauthorized for unknown or
// expired keys.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, key string) (*model.Account, error)
}

// ErrorWriter renders an error response. The handler package owns the
// mapping from errors to status codes, so the middleware borrows it.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// RequireToken is a middleware that enforces token authentication.
//
// It reads "Authorization: Token <key>", resolves the key through authn and
// stores the account in the request context. Anything else stops the chain
// with a 401 rendered by writeErr.
//
// MIDDLEWARE PATTERN IN GO:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... do stuff before the handler ...
//	        next.ServeHTTP(w, r)
//	    })
//	}
func RequireToken(authn Authenticator, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := KeyFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeErr(w, r, err)
				return
			}

			account, err := authn.AuthenticateToken(r.Context(), key)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}

// KeyFromHeader extracts the key from an Authorization header value.
//
//	""                  → not provided
//	"Bearer abc"        → not provided (another scheme is not ours to judge)
//	"Token"             → no credentials
//	"Token a b"         → contains spaces
//	"token abc"         → "abc" (the scheme is case-insensitive)
func KeyFromHeader(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) == 0 || !strings.EqualFold(parts[0], Scheme) {
		return "", apperror.Unauthorized(MsgNotProvided)
	}
	switch len(parts) {
	case 1:
		return "", apperror.Unauthorized(MsgNoKey)
	case 2:
		return parts[1], nil
	default:
		return "", apperror.Unauthorized(MsgKeyHasSpaces)
	}
}

// WithAccount returns a copy of ctx carrying the authenticated account.
func WithAccount(ctx context.Context, account *model.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext retrieves the authenticated account.
//
// Returns (nil, false) if the request went through no RequireToken.
//
// Usage in handlers:
//
//	caller, ok := auth.AccountFromContext(r.Context())
func AccountFromContext(ctx context.Context) (*model.Account, bool) {
	a, ok := ctx.Value(accountKey).(*model.Account)
	return a, ok && a != nil
}
