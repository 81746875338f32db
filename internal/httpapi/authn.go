package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"deskhub.org/internal/identity"
	"deskhub.org/internal/resource"
	"deskhub.org/internal/role"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	sessionCookie = "authToken"
	deskCookie    = "deskToken"
)

// sessionToken pulls the raw session token from the Authorization header or
// the authToken cookie. Header wins when both are present.
func sessionToken(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
			return "", errors.New("invalid authorization scheme")
		}
		tok := strings.TrimSpace(header[len(bearer):])
		if tok == "" {
			return "", errors.New("missing bearer token")
		}
		return tok, nil
	}
	if c, err := r.Cookie(sessionCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), nil
	}
	return "", errors.New("missing authentication token")
}

// withIdentity authenticates the request and re-fetches the identity record,
// so role changes take effect on the very next request.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		raw, err := sessionToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}
		user, err := a.identity.Verify(r.Context(), raw)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := identity.ContextWithIdentity(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole gates on the single role comparator. It assumes withIdentity
// already ran.
func (a *API) requireRole(min role.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := identity.FromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if !user.Role.Meets(min) {
			writeError(w, r, http.StatusForbidden, "Acceso denegado")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withDesk validates the deskToken cookie and re-checks membership on every
// request; nothing about desk membership is cached.
func (a *API) withDesk(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := identity.FromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		c, err := r.Cookie(deskCookie)
		if err != nil || strings.TrimSpace(c.Value) == "" {
			writeError(w, r, http.StatusForbidden, "Acceso denegado")
			return
		}
		desk, err := a.identity.VerifyDesk(r.Context(), strings.TrimSpace(c.Value), user.ID)
		if err != nil {
			writeError(w, r, http.StatusForbidden, "Acceso denegado")
			return
		}
		ctx := identity.ContextWithDesk(r.Context(), desk)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// protect chains identity then role gate.
func (a *API) protect(min role.Role, next http.Handler) http.Handler {
	return a.withIdentity(a.requireRole(min, next))
}

// deskProtect chains identity, role gate, then desk membership, strictly in
// that order.
func (a *API) deskProtect(min role.Role, next http.Handler) http.Handler {
	return a.withIdentity(a.requireRole(min, a.withDesk(next)))
}

// caller builds the desk-scoped caller from request context. Both gates must
// have run.
func caller(r *http.Request) (resource.Caller, bool) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		return resource.Caller{}, false
	}
	desk, ok := identity.DeskFromContext(r.Context())
	if !ok {
		return resource.Caller{}, false
	}
	return resource.Caller{ID: user.ID, Role: user.Role, DeskID: desk.ID}, true
}
