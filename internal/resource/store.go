package resource

import (
	"context"

	"deskhub.org/internal/policy"
)

// Store bundles persistence for every desk-scoped resource kind.
type Store interface {
	Accounts() AccountStore
	Tasks() TaskStore
	Items() ItemStore
	Events() EventStore
	Reports() ReportStore
	Categories() CategoryStore
	Folders() FolderStore
}

// AccountStore persists accounts and their transactions.
type AccountStore interface {
	List(ctx context.Context, f policy.Filter) ([]Account, error)
	Find(ctx context.Context, deskID, id string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, deskID, id string) error
	// RecordSale appends a transaction and adjusts the account balance in a
	// single transactional step.
	RecordSale(ctx context.Context, deskID, accountID string, amount int64, concept, actorID string) (*Transaction, error)
	ListTransactions(ctx context.Context, deskID, accountID string) ([]Transaction, error)
}

// TaskStore persists tasks.
type TaskStore interface {
	List(ctx context.Context, f policy.Filter) ([]Task, error)
	Find(ctx context.Context, deskID, id string) (*Task, error)
	Create(ctx context.Context, t *Task) error
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, deskID, id string) error
}

// ItemStore persists inventory items and their stock movements.
type ItemStore interface {
	List(ctx context.Context, f policy.Filter) ([]Item, error)
	Find(ctx context.Context, deskID, id string) (*Item, error)
	Create(ctx context.Context, i *Item) error
	Update(ctx context.Context, i *Item) error
	Delete(ctx context.Context, deskID, id string) error
	// RecordMovement appends a movement and adjusts the item stock in a
	// single transactional step.
	RecordMovement(ctx context.Context, deskID, itemID string, delta int64, note, actorID string) (*Movement, error)
	ListMovements(ctx context.Context, deskID, itemID string) ([]Movement, error)
}

// EventStore persists calendar events.
type EventStore interface {
	List(ctx context.Context, f policy.Filter) ([]Event, error)
	Find(ctx context.Context, deskID, id string) (*Event, error)
	Create(ctx context.Context, e *Event) error
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, deskID, id string) error
}

// ReportStore persists reports. Listing filters match the author, not an
// assignment list.
type ReportStore interface {
	List(ctx context.Context, f policy.Filter) ([]Report, error)
	Find(ctx context.Context, deskID, id string) (*Report, error)
	Create(ctx context.Context, r *Report) error
	Update(ctx context.Context, r *Report) error
	Delete(ctx context.Context, deskID, id string) error
}

// CategoryStore persists categories (desk-wide, no assignment).
type CategoryStore interface {
	List(ctx context.Context, deskID string) ([]Category, error)
	Find(ctx context.Context, deskID, id string) (*Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, deskID, id string) error
}

// FolderStore persists folders (desk-wide, no assignment).
type FolderStore interface {
	List(ctx context.Context, deskID string) ([]Folder, error)
	Find(ctx context.Context, deskID, id string) (*Folder, error)
	Create(ctx context.Context, f *Folder) error
	Update(ctx context.Context, f *Folder) error
	Delete(ctx context.Context, deskID, id string) error
}
