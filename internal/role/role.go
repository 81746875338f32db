// Package role defines the ordered privilege hierarchy used across the API.
//
// The ordering is a property of the enumeration itself, not of any array a
// caller happens to index into: rank comparisons always go through Rank and
// Meets so the hierarchy cannot silently drift.
package role

import (
	"errors"
	"fmt"
	"strings"
)

// Role is one of the four privilege levels.
type Role string

const (
	Owner  Role = "owner"
	Admin  Role = "admin"
	User   Role = "user"
	Client Role = "client"
)

// ordered lists roles from most to least privileged. Rank is the index here.
var ordered = [...]Role{Owner, Admin, User, Client}

// ErrUnknown indicates a string that is not one of the four roles.
var ErrUnknown = errors.New("role: unknown role")

// Parse normalizes and validates a role string.
func Parse(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return r, nil
}

// All returns the roles ordered from most to least privileged.
func All() []Role {
	out := make([]Role, len(ordered))
	copy(out, ordered[:])
	return out
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// Rank returns the position in the privilege order (0 = most privileged).
// Unknown roles rank -1.
func (r Role) Rank() int {
	for i, known := range ordered {
		if r == known {
			return i
		}
	}
	return -1
}

// Meets reports whether r satisfies a gate requiring at least min.
// A lower rank means more privilege, so owner meets every gate and client
// meets only a client gate. Unknown roles never meet anything.
func (r Role) Meets(min Role) bool {
	rr, mr := r.Rank(), min.Rank()
	if rr < 0 || mr < 0 {
		return false
	}
	return rr <= mr
}

func (r Role) String() string { return string(r) }
