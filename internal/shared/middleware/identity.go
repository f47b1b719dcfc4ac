package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ContextKey string

const OwnerIDKey ContextKey = "owner_id"

// Identity copies the owner id from a gateway-injected header into the
// request context. With an empty header name it does nothing; requests then
// carry the owner in the query string or body.
func Identity(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if header == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner := strings.TrimSpace(r.Header.Get(header)); owner != "" {
				r = r.WithContext(WithOwnerID(r.Context(), owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// OwnerFromContext returns the trusted owner id, if one was injected.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(OwnerIDKey).(string)
	return owner, ok && owner != ""
}

// BearerIdentity verifies "Authorization: Bearer" tokens and puts the owner
// they carry into the request context, replacing any header-supplied owner.
// Requests without a bearer token pass through unchanged; an invalid token is
// answered with 401. A nil verify disables the middleware.
func BearerIdentity(verify func(token string) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verify == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				next.ServeHTTP(w, r)
				return
			}

			owner, err := verify(strings.TrimSpace(token))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"invalid or expired token"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), owner)))
		})
	}
}
