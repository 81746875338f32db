package httpapi

import (
	"net/http"
	"strings"
	"time"

	"deskhub.org/internal/audit"
	"deskhub.org/internal/identity"
	"deskhub.org/internal/role"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	AdminInviteToken string `json:"adminInviteToken"`
}

type sessionResponse struct {
	*identity.Identity
	Token string `json:"token"`
}

type inviteResponse struct {
	Token     string    `json:"token"`
	Role      role.Role `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, signed, err := a.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	setCookie(w, sessionCookie, signed, time.Now().UTC().Add(a.tokens.SessionTTL()), a.cookieSecure)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, sessionResponse{Identity: user, Token: signed})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, signed, err := a.identity.Register(r.Context(), identity.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		InviteToken: req.AdminInviteToken,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	setCookie(w, sessionCookie, signed, time.Now().UTC().Add(a.tokens.SessionTTL()), a.cookieSecure)
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
	})
	writeJSON(w, http.StatusCreated, sessionResponse{Identity: user, Token: signed})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, _ := identity.FromContext(r.Context())
	// Closing the open session is best effort; a store error must not keep
	// the client logged in.
	closed, err := a.identity.Logout(r.Context(), user.ID)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.logout.close_failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		closed = false
	}
	clearCookie(w, sessionCookie, a.cookieSecure)
	clearCookie(w, deskCookie, a.cookieSecure)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "logged out",
		"sessionClosed": closed,
	})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.FromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req struct {
			Name            *string `json:"name"`
			ProfileImageURL *string `json:"profileImageUrl"`
			Password        *string `json:"password"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.identity.UpdateProfile(r.Context(), user.ID, identity.ProfileUpdate{
			Name:            req.Name,
			ProfileImageURL: req.ProfileImageURL,
			Password:        req.Password,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// handleInviteToken mints an invite for any known role. Owner only.
func (a *API) handleInviteToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	granted, err := role.Parse(r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.issueInvite(w, r, granted)
}

// handleMemberInviteToken mints user-role invites only. Admin gate; the two
// issuance routes stay separate on purpose.
func (a *API) handleMemberInviteToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.issueInvite(w, r, role.User)
}

func (a *API) issueInvite(w http.ResponseWriter, r *http.Request, granted role.Role) {
	signed, expiresAt, err := a.tokens.IssueInvite(granted)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.invite.issued", map[string]any{
		"role":       string(granted),
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, inviteResponse{Token: signed, Role: granted, ExpiresAt: expiresAt})
}

// handleUserResource serves PUT /api/users/{id}/role. Admin or above.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/users/")
	id, rest, _ := strings.Cut(path, "/")
	if id == "" || rest != "role" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	newRole, err := role.Parse(req.Role)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.identity.ChangeRole(r.Context(), id, newRole)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.role.changed", map[string]any{
		"target_user": user.ID,
		"role":        string(newRole),
	})
	writeJSON(w, http.StatusOK, user)
}
