package httpapi

import (
	"net/http"
	"strings"
	"time"

	"deskhub.org/internal/resource"
)

// splitResource takes "/api/<kind>/<id>[/<sub>]" and returns id and sub.
func splitResource(path, prefix string) (id, sub string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	id, sub, _ = strings.Cut(rest, "/")
	return id, sub
}

// Accounts -------------------------------------------------------------------

type accountRequest struct {
	Name       *string   `json:"name"`
	CategoryID *string   `json:"categoryId"`
	AssignedTo *[]string `json:"assignedTo"`
}

func (in accountRequest) input() resource.AccountInput {
	return resource.AccountInput{Name: in.Name, CategoryID: in.CategoryID, AssignedTo: in.AssignedTo}
}

type saleRequest struct {
	Amount  int64  `json:"amount"`
	Concept string `json:"concept"`
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.resources.ListAccounts(r.Context(), c)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []resource.Account{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req accountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		acc, err := a.resources.CreateAccount(r.Context(), c, req.input())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, acc)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, sub := splitResource(r.URL.Path, "/api/accounts/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if sub == "sales" {
		a.handleAccountSales(w, r, c, id)
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		acc, err := a.resources.GetAccount(r.Context(), c, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	case http.MethodPut:
		var req accountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		acc, err := a.resources.UpdateAccount(r.Context(), c, id, req.input())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	case http.MethodDelete:
		if err := a.resources.DeleteAccount(r.Context(), c, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleAccountSales(w http.ResponseWriter, r *http.Request, c resource.Caller, accountID string) {
	switch r.Method {
	case http.MethodPost:
		var req saleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := a.resources.RecordSale(r.Context(), c, accountID, req.Amount, req.Concept)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	case http.MethodGet:
		recs, err := a.resources.ListTransactions(r.Context(), c, accountID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if recs == nil {
			recs = []resource.Transaction{}
		}
		writeJSON(w, http.StatusOK, recs)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// Tasks ----------------------------------------------------------------------

type taskRequest struct {
	Title       *string                   `json:"title"`
	Description *string                   `json:"description"`
	FolderID    *string                   `json:"folderId"`
	DueDate     *time.Time                `json:"dueDate"`
	Checklist   *[]resource.ChecklistItem `json:"checklist"`
	AssignedTo  *[]string                 `json:"assignedTo"`
}

func (in taskRequest) input() resource.TaskInput {
	return resource.TaskInput{
		Title:       in.Title,
		Description: in.Description,
		FolderID:    in.FolderID,
		DueDate:     in.DueDate,
		Checklist:   in.Checklist,
		AssignedTo:  in.AssignedTo,
	}
}

func (a *API) handleTasksCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.resources.ListTasks(r.Context(), c)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []resource.Task{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req taskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.resources.CreateTask(r.Context(), c, req.input())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, sub := splitResource(r.URL.Path, "/api/tasks/")
	if id == "" || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		t, err := a.resources.GetTask(r.Context(), c, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPut:
		var req taskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.resources.UpdateTask(r.Context(), c, id, req.input())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if err := a.resources.DeleteTask(r.Context(), c, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// Inventory ------------------------------------------------------------------

type itemRequest struct {
	Name       *string   `json:"name"`
	CategoryID *string   `json:"categoryId"`
	AssignedTo *[]string `json:"assignedTo"`
}

type movementRequest struct {
	Delta int64  `json:"delta"`
	Note  string `json:"note"`
}

func (a *API) handleItemsCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.resources.ListItems(r.Context(), c)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []resource.Item{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req itemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		it, err := a.resources.CreateItem(r.Context(), c, resource.ItemInput{
			Name: req.Name, CategoryID: req.CategoryID, AssignedTo: req.AssignedTo,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, it)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleItemResource(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, sub := splitResource(r.URL.Path, "/api/inventories/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if sub == "movements" {
		a.handleItemMovements(w, r, c, id)
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		it, err := a.resources.GetItem(r.Context(), c, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	case http.MethodPut:
		var req itemRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		it, err := a.resources.UpdateItem(r.Context(), c, id, resource.ItemInput{
			Name: req.Name, CategoryID: req.CategoryID, AssignedTo: req.AssignedTo,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	case http.MethodDelete:
		if err := a.resources.DeleteItem(r.Context(), c, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleItemMovements(w http.ResponseWriter, r *http.Request, c resource.Caller, itemID string) {
	switch r.Method {
	case http.MethodPost:
		var req movementRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rec, err := a.resources.RecordMovement(r.Context(), c, itemID, req.Delta, req.Note)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	case http.MethodGet:
		recs, err := a.resources.ListMovements(r.Context(), c, itemID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if recs == nil {
			recs = []resource.Movement{}
		}
		writeJSON(w, http.StatusOK, recs)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// Events ---------------------------------------------------------------------

type eventRequest struct {
	Title      *string    `json:"title"`
	Start      *time.Time `json:"start"`
	End        *time.Time `json:"end"`
	AssignedTo *[]string  `json:"assignedTo"`
}

func (in eventRequest) input() resource.EventInput {
	return resource.EventInput{Title: in.Title, Start: in.Start, End: in.End, AssignedTo: in.AssignedTo}
}

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.resources.ListEvents(r.Context(), c)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []resource.Event{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req eventRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ev, err := a.resources.CreateEvent(r.Context(), c, req.input())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, sub := splitResource(r.URL.Path, "/api/events/")
	if id == "" || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req eventRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ev, err := a.resources.UpdateEvent(r.Context(), c, id, req.input())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	case http.MethodDelete:
		if err := a.resources.DeleteEvent(r.Context(), c, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

// Reports --------------------------------------------------------------------

type reportRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (a *API) handleReportsCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.resources.ListReports(r.Context(), c)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []resource.Report{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req reportRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rep, err := a.resources.CreateReport(r.Context(), c, resource.ReportInput{
			Title: req.Title, Content: req.Content,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rep)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleReportResource(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, sub := splitResource(r.URL.Path, "/api/reports/")
	if id == "" || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req reportRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rep, err := a.resources.UpdateReport(r.Context(), c, id, resource.ReportInput{
			Title: req.Title, Content: req.Content,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	case http.MethodDelete:
		if err := a.resources.DeleteReport(r.Context(), c, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

// Categories and folders -----------------------------------------------------

type nameRequest struct {
	Name string `json:"name"`
}

func (a *API) handleCategoriesCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.resources.ListCategories(r.Context(), c)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []resource.Category{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		cat, err := a.resources.CreateCategory(r.Context(), c, req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, cat)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCategoryResource(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, sub := splitResource(r.URL.Path, "/api/categories/")
	if id == "" || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		cat, err := a.resources.UpdateCategory(r.Context(), c, id, req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cat)
	case http.MethodDelete:
		if err := a.resources.DeleteCategory(r.Context(), c, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleFoldersCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.resources.ListFolders(r.Context(), c)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if items == nil {
			items = []resource.Folder{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		f, err := a.resources.CreateFolder(r.Context(), c, req.Name)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleFolderResource(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(r)
	if !ok {
		writeError(w, r, http.StatusForbidden, "Acceso denegado")
		return
	}
	id, sub := splitResource(r.URL.Path, "/api/folders/")
	if id == "" || sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodDelete:
		if err := a.resources.DeleteFolder(r.Context(), c, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodDelete)
	}
}
