// Package policy is the single rule set for what a caller may see and change
// within a desk. Listing visibility is uniform across resource kinds; mutation
// rights are deliberately per-kind and are not unified into one rule.
package policy

import "deskhub.org/internal/role"

// Filter shapes a listing query. An empty MemberID means no assignment
// restriction: every record in the desk matches.
type Filter struct {
	DeskID   string
	MemberID string
}

// Scope derives the listing filter for a caller. Owners and admins see all
// desk records; users and clients only records referencing them.
func Scope(r role.Role, userID, deskID string) Filter {
	if r.Meets(role.Admin) {
		return Filter{DeskID: deskID}
	}
	return Filter{DeskID: deskID, MemberID: userID}
}

// Kind names a resource family.
type Kind string

const (
	KindAccount   Kind = "account"
	KindTask      Kind = "task"
	KindInventory Kind = "inventory"
	KindEvent     Kind = "event"
	KindReport    Kind = "report"
	KindCategory  Kind = "category"
	KindFolder    Kind = "folder"
)

// Action is a mutation class.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Subject describes the caller's relation to the record being mutated.
type Subject struct {
	Role     role.Role
	Assigned bool
	Creator  bool
}

// Allows evaluates the per-resource mutation table.
func Allows(k Kind, a Action, s Subject) bool {
	admin := s.Role.Meets(role.Admin)
	owner := s.Role.Meets(role.Owner)

	switch k {
	case KindAccount:
		switch a {
		case ActionCreate:
			return admin
		case ActionUpdate:
			return admin || s.Assigned
		case ActionDelete:
			return owner
		}
	case KindTask:
		switch a {
		case ActionCreate:
			return admin
		case ActionUpdate:
			return admin || s.Assigned
		case ActionDelete:
			return admin
		}
	case KindInventory, KindEvent:
		switch a {
		case ActionCreate, ActionUpdate:
			return admin
		case ActionDelete:
			return owner
		}
	case KindReport:
		switch a {
		case ActionCreate:
			// Any authenticated desk member may file a report.
			return s.Role.Valid()
		case ActionUpdate:
			return s.Creator && admin
		case ActionDelete:
			return owner
		}
	case KindCategory, KindFolder:
		switch a {
		case ActionCreate, ActionUpdate:
			return admin
		case ActionDelete:
			return owner
		}
	}
	return false
}
