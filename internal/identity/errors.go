package identity

import "errors"

var (
	ErrNotFound           = errors.New("identity: not found")
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrInvalidInvite      = errors.New("identity: invalid invite token")
	ErrNotMember          = errors.New("identity: not a desk member")
	ErrInvalidInput       = errors.New("identity: invalid input")
)
