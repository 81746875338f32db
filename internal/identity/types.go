package identity

import (
	"time"

	"deskhub.org/internal/role"
)

// Identity is a registered account holder.
type Identity struct {
	ID              string    `json:"_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Role            role.Role `json:"role"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Desk is a tenant workspace. Every desk-scoped resource carries a desk
// reference and is only visible within that desk's context.
type Desk struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether the given user belongs to the desk.
func (d *Desk) HasMember(userID string) bool {
	for _, m := range d.Members {
		if m == userID {
			return true
		}
	}
	return false
}
