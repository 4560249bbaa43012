package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"debtster_portal/internal/services/gatekeeper"
)

type ctxKey string

const IdentityKey ctxKey = "identity"

type Resolver interface {
	Resolve(ctx context.Context, token string) gatekeeper.Identity
}

// Token reads the session token from the Authorization header, falling back to
// the session cookie.
func Token(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); t != "" {
			return t
		}
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// Gate resolves the caller's journey state for every request and either
// redirects (303) or passes the request on with the Identity in its context.
func Gate(resolver Resolver, rules gatekeeper.Rules, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// allow OPTIONS (CORS preflight) to pass through
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			kind := rules.Kind(r.URL.Path)
			token := Token(r, cookieName)

			var id gatekeeper.Identity
			if kind == gatekeeper.Public && token == "" {
				id = gatekeeper.Identity{State: gatekeeper.Unauthenticated}
			} else {
				id = resolver.Resolve(r.Context(), token)
			}

			d := gatekeeper.Decide(id.State, kind)
			if !d.Allow {
				log.Printf("[GATE] %s %s state=%s kind=%s -> %s", r.Method, r.URL.Path, id.State, kind, d.RedirectTo)
				http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetIdentity(ctx context.Context) (gatekeeper.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(gatekeeper.Identity)
	return id, ok
}

func GetUserID(ctx context.Context) (string, error) {
	id, ok := GetIdentity(ctx)
	if !ok || id.UserID == "" {
		return "", errors.New("userID not found in context")
	}
	return id.UserID, nil
}
