package httpapi

import (
	"net/http"
	"sort"
	"strconv"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/audit"
	"deskhub.org/internal/identity"
)

type sessionView struct {
	attendance.Session
	WorkedHours float64 `json:"workedHours"`
}

type weekGroup struct {
	Year       int           `json:"year"`
	Week       int           `json:"week"`
	Sessions   []sessionView `json:"sessions"`
	TotalHours float64       `json:"totalHours"`
}

// groupByWeek buckets sessions into ISO weeks, newest week first.
func groupByWeek(sessions []attendance.Session) []weekGroup {
	type key struct{ year, week int }
	buckets := make(map[key]*weekGroup)
	for _, s := range sessions {
		year, week := s.Week()
		k := key{year, week}
		g, ok := buckets[k]
		if !ok {
			g = &weekGroup{Year: year, Week: week}
			buckets[k] = g
		}
		g.Sessions = append(g.Sessions, sessionView{Session: s, WorkedHours: s.WorkedHours()})
		g.TotalHours += s.WorkedHours()
	}
	out := make([]weekGroup, 0, len(buckets))
	for _, g := range buckets {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Week > out[j].Week
	})
	return out
}

func (a *API) handleAttendance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, _ := identity.FromContext(r.Context())
	sessions, err := a.attendance.ListByUser(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupByWeek(sessions))
}

func (a *API) handleAttendanceAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sessions, err := a.attendance.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groupByWeek(sessions))
}

// handleAttendanceWeek deletes every session of one ISO week. Owner only.
func (a *API) handleAttendanceWeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 2000 || year > 2200 {
		writeError(w, r, http.StatusBadRequest, "year must be a valid integer")
		return
	}
	week, err := strconv.Atoi(r.URL.Query().Get("week"))
	if err != nil || week < 1 || week > 53 {
		writeError(w, r, http.StatusBadRequest, "week must be between 1 and 53")
		return
	}
	deleted, err := a.attendance.DeleteWeek(r.Context(), year, week)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "attendance.week.deleted", map[string]any{
		"year": year, "week": week, "deleted": deleted,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
