package identity

import "context"

// UserStore persists identities.
type UserStore interface {
	Create(ctx context.Context, u *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	Update(ctx context.Context, u *Identity) error
}

// DeskStore persists desks and their member sets.
type DeskStore interface {
	Create(ctx context.Context, d *Desk) error
	Find(ctx context.Context, id string) (*Desk, error)
	ListByMember(ctx context.Context, userID string) ([]*Desk, error)
	AddMember(ctx context.Context, deskID, userID string) error
	RemoveMember(ctx context.Context, deskID, userID string) error
}
