package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"deskhub.org/internal/audit"
	"deskhub.org/internal/identity"
)

type createDeskRequest struct {
	Title string `json:"title"`
}

type deskTokenRequest struct {
	DeskID string `json:"deskId"`
}

func (a *API) handleDesksCollection(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.FromContext(r.Context())
	switch r.Method {
	case http.MethodPost:
		var req createDeskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		desk, err := a.identity.CreateDesk(r.Context(), user.ID, req.Title)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, desk)
	case http.MethodGet:
		desks, err := a.identity.Desks(r.Context(), user.ID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if desks == nil {
			desks = []*identity.Desk{}
		}
		writeJSON(w, http.StatusOK, desks)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleDeskToken mints a desk token after the membership check. A non-member
// gets 401, matching the login-like semantics of this route.
func (a *API) handleDeskToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, _ := identity.FromContext(r.Context())
	var req deskTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.DeskID) == "" {
		writeError(w, r, http.StatusBadRequest, "deskId is required")
		return
	}
	signed, desk, err := a.identity.MintDeskToken(r.Context(), user.ID, req.DeskID)
	if err != nil {
		if errors.Is(err, identity.ErrNotMember) {
			writeError(w, r, http.StatusUnauthorized, "Acceso denegado")
			return
		}
		handleServiceError(w, r, err)
		return
	}
	setCookie(w, deskCookie, signed, time.Now().UTC().Add(a.tokens.SessionTTL()), a.cookieSecure)
	_ = audit.LogEvent(r.Context(), "desk.token.issued", map[string]any{"desk_id": desk.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"desk":  desk,
		"token": signed,
	})
}

// handleDeskResource serves member management:
// POST   /api/desks/{id}/members          body {userId}
// DELETE /api/desks/{id}/members/{userId}
func (a *API) handleDeskResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/desks/")
	deskID, rest, _ := strings.Cut(path, "/")
	if deskID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch {
	case rest == "members" && r.Method == http.MethodPost:
		var req struct {
			UserID string `json:"userId"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			writeError(w, r, http.StatusBadRequest, "userId is required")
			return
		}
		if err := a.identity.AddDeskMember(r.Context(), deskID, req.UserID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "desk.member.added", map[string]any{
			"desk_id": deskID, "member_id": req.UserID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "member added"})
	case strings.HasPrefix(rest, "members/") && r.Method == http.MethodDelete:
		userID := strings.TrimPrefix(rest, "members/")
		if userID == "" || strings.Contains(userID, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if err := a.identity.RemoveDeskMember(r.Context(), deskID, userID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "desk.member.removed", map[string]any{
			"desk_id": deskID, "member_id": userID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "member removed"})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
