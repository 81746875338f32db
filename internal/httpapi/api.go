// Package httpapi exposes the REST surface: authentication, desk scoping and
// the desk-bound resource routes. Handlers stay thin; policy lives in the
// services.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/identity"
	"deskhub.org/internal/obs"
	"deskhub.org/internal/resource"
	"deskhub.org/internal/role"
	"deskhub.org/internal/token"
)

// ReadyProbe checks backing-store readiness (database ping when present).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the HTTP-layer knobs read once in main.
type Config struct {
	Version      string
	CookieSecure bool
	// AllowedOrigins lists browser origins permitted for cross-origin,
	// credentialed requests. Localhost is always accepted.
	AllowedOrigins []string
	// RateBurst/RatePerSecond guard the public auth endpoints.
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux            *http.ServeMux
	identity       *identity.Service
	attendance     *attendance.Service
	resources      *resource.Service
	tokens         *token.Manager
	readyProbe     ReadyProbe
	version        string
	cookieSecure   bool
	allowedOrigins []string
}

// New wires the route table.
func New(id *identity.Service, att *attendance.Service, res *resource.Service, tokens *token.Manager, rp ReadyProbe, cfg Config) *API {
	a := &API{
		mux:            http.NewServeMux(),
		identity:       id,
		attendance:     att,
		resources:      res,
		tokens:         tokens,
		readyProbe:     rp,
		version:        cfg.Version,
		cookieSecure:   cfg.CookieSecure,
		allowedOrigins: cfg.AllowedOrigins,
	}

	burst, per := cfg.RateBurst, cfg.RatePerSecond
	if burst <= 0 {
		burst = 10
	}
	if per <= 0 {
		per = 5
	}

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// public auth, rate limited per IP
	a.mux.Handle("/api/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), burst, per))
	a.mux.Handle("/api/auth/register", RateLimit(http.HandlerFunc(a.handleRegister), burst, per))

	// identity-gated
	a.mux.Handle("/api/auth/logout", a.withIdentity(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("/api/auth/profile", a.withIdentity(http.HandlerFunc(a.handleProfile)))
	a.mux.Handle("/api/auth/invite-token", a.protect(role.Owner, http.HandlerFunc(a.handleInviteToken)))
	a.mux.Handle("/api/auth/invite-token/member", a.protect(role.Admin, http.HandlerFunc(a.handleMemberInviteToken)))
	a.mux.Handle("/api/users/", a.protect(role.Admin, http.HandlerFunc(a.handleUserResource)))

	a.mux.Handle("/api/desks", a.withIdentity(http.HandlerFunc(a.handleDesksCollection)))
	a.mux.Handle("/api/desks/token", a.withIdentity(http.HandlerFunc(a.handleDeskToken)))
	a.mux.Handle("/api/desks/", a.protect(role.Admin, http.HandlerFunc(a.handleDeskResource)))

	// desk-gated: identity, minimum role, then desk membership, in that order
	a.mux.Handle("/api/attendance", a.deskProtect(role.Client, http.HandlerFunc(a.handleAttendance)))
	a.mux.Handle("/api/attendance/all", a.deskProtect(role.Admin, http.HandlerFunc(a.handleAttendanceAll)))
	a.mux.Handle("/api/attendance/week", a.deskProtect(role.Owner, http.HandlerFunc(a.handleAttendanceWeek)))

	for _, route := range []struct {
		prefix             string
		collection, single http.HandlerFunc
	}{
		{"/api/accounts", a.handleAccountsCollection, a.handleAccountResource},
		{"/api/tasks", a.handleTasksCollection, a.handleTaskResource},
		{"/api/inventories", a.handleItemsCollection, a.handleItemResource},
		{"/api/events", a.handleEventsCollection, a.handleEventResource},
		{"/api/reports", a.handleReportsCollection, a.handleReportResource},
		{"/api/categories", a.handleCategoriesCollection, a.handleCategoryResource},
		{"/api/folders", a.handleFoldersCollection, a.handleFolderResource},
	} {
		a.mux.Handle(route.prefix, a.deskProtect(role.Client, route.collection))
		a.mux.Handle(route.prefix+"/", a.deskProtect(role.Client, route.single))
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h, a.allowedOrigins)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "deskhub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"message": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleServiceError maps service sentinel errors to one consistent status per
// failure kind: 401 unauthenticated, 403 forbidden, 400 validation, 404
// missing.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, identity.ErrInvalidInvite):
		writeError(w, r, http.StatusUnauthorized, "Unauthorized token")
	case errors.Is(err, token.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, identity.ErrNotMember):
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
	case errors.Is(err, resource.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, r, http.StatusBadRequest, "email already registered")
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, resource.ErrInvalidInput),
		errors.Is(err, role.ErrUnknown):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, resource.ErrInsufficientStock):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, resource.ErrNotFound),
		errors.Is(err, attendance.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func setCookie(w http.ResponseWriter, name, value string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
