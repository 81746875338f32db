package resource

import (
	"errors"
	"math"
	"time"

	"deskhub.org/internal/policy"
)

var (
	ErrNotFound          = errors.New("resource: not found")
	ErrForbidden         = errors.New("resource: forbidden")
	ErrInvalidInput      = errors.New("resource: invalid input")
	ErrInsufficientStock = errors.New("resource: insufficient stock")
)

// Task status values derived from checklist completion. The literals are part
// of the external contract.
const (
	StatusPending    = "Pendiente"
	StatusInProgress = "En curso"
	StatusDone       = "Finalizada"
)

// Meta is the shape shared by all assignable resources: desk scoping, an
// author and an assignment list. Visibility and mutation rights derive from
// role rank plus membership in AssignedTo/CreatedBy.
type Meta struct {
	ID         string    `json:"_id"`
	DeskID     string    `json:"desk"`
	CreatedBy  string    `json:"createdBy"`
	AssignedTo []string  `json:"assignedTo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IsAssigned reports whether the user appears in the assignment list.
func (m *Meta) IsAssigned(userID string) bool {
	for _, id := range m.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// Visible evaluates the listing filter against the assignment list.
func (m *Meta) Visible(f policy.Filter) bool {
	if m.DeskID != f.DeskID {
		return false
	}
	if f.MemberID == "" {
		return true
	}
	return m.IsAssigned(f.MemberID)
}

// VisibleByCreator evaluates the filter against the author instead of the
// assignment list; used for resources without assignment (reports).
func (m *Meta) VisibleByCreator(f policy.Filter) bool {
	if m.DeskID != f.DeskID {
		return false
	}
	return f.MemberID == "" || m.CreatedBy == f.MemberID
}

// Account is a bookkeeping account with a running balance in minor units.
type Account struct {
	Meta
	Name       string `json:"name"`
	CategoryID string `json:"category,omitempty"`
	Balance    int64  `json:"balance"`
}

// Transaction records one balance adjustment against an account.
type Transaction struct {
	ID        string    `json:"_id"`
	DeskID    string    `json:"desk"`
	AccountID string    `json:"account"`
	Amount    int64     `json:"amount"`
	Concept   string    `json:"concept,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChecklistItem is one entry of a task checklist.
type ChecklistItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task carries a checklist from which status and progress are derived.
// Both fields are recomputed on every write and never settable by callers.
type Task struct {
	Meta
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	FolderID    string          `json:"folder,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Checklist   []ChecklistItem `json:"checklist,omitempty"`
	Status      string          `json:"status"`
	Progress    float64         `json:"progress"`
}

// Derive recomputes status and progress from the checklist.
func (t *Task) Derive() {
	t.Progress, t.Status = DeriveProgress(t.Checklist)
}

// DeriveProgress maps checklist completion to a progress percentage and a
// status literal: 0 -> Pendiente, (0,100) -> En curso, 100 -> Finalizada.
// An empty checklist counts as zero progress.
func DeriveProgress(items []ChecklistItem) (float64, string) {
	if len(items) == 0 {
		return 0, StatusPending
	}
	completed := 0
	for _, it := range items {
		if it.Completed {
			completed++
		}
	}
	progress := float64(completed) / float64(len(items)) * 100
	progress = math.Round(progress*100) / 100
	switch {
	case progress <= 0:
		return progress, StatusPending
	case progress >= 100:
		return progress, StatusDone
	default:
		return progress, StatusInProgress
	}
}

// Item is an inventory entry with a stock counter.
type Item struct {
	Meta
	Name       string `json:"name"`
	CategoryID string `json:"category,omitempty"`
	Stock      int64  `json:"stock"`
}

// Movement records one stock adjustment against an item.
type Movement struct {
	ID        string    `json:"_id"`
	DeskID    string    `json:"desk"`
	ItemID    string    `json:"item"`
	Delta     int64     `json:"delta"`
	Note      string    `json:"note,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event is a calendar entry.
type Event struct {
	Meta
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Report has no assignment list; visibility follows the author.
type Report struct {
	Meta
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// Category classifies accounts and inventory items within a desk.
type Category struct {
	ID        string    `json:"_id"`
	DeskID    string    `json:"desk"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Folder groups tasks within a desk.
type Folder struct {
	ID        string    `json:"_id"`
	DeskID    string    `json:"desk"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
