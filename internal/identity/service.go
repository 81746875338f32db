package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/ids"
	"deskhub.org/internal/role"
	"deskhub.org/internal/token"
)

// Service implements the authentication chain: credential verification, invite
// gated registration, desk token minting and per-request desk membership
// checks. Every verification re-reads the backing store so role and membership
// changes take effect on the very next request.
type Service struct {
	users    UserStore
	desks    DeskStore
	tokens   *token.Manager
	sessions *attendance.Service
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(users UserStore, desks DeskStore, tokens *token.Manager, sessions *attendance.Service, opts ...Option) *Service {
	s := &Service{
		users:    users,
		desks:    desks,
		tokens:   tokens,
		sessions: sessions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput is the self-registration payload. The invite token is the
// sole mechanism for assigning a role to a new identity.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	InviteToken string
}

// Register creates an identity with the role granted by the invite token and
// returns it together with a fresh session token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Identity, string, error) {
	granted, err := s.tokens.ParseInvite(in.InviteToken)
	if err != nil {
		return nil, "", ErrInvalidInvite
	}
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: name and valid email are required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Password) == "" {
		return nil, "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	user := &Identity{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         granted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", err
	}
	signed, _, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

// Login authenticates credentials, opens an attendance session and issues a
// session token.
func (s *Service) Login(ctx context.Context, email, password string) (*Identity, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	signed, _, err := s.tokens.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.sessions.Open(ctx, user.ID); err != nil {
		return nil, "", err
	}
	return user, signed, nil
}

// Logout closes the most recent open attendance session. Finding none is not
// an error; logout always succeeds.
func (s *Service) Logout(ctx context.Context, userID string) (bool, error) {
	return s.sessions.Close(ctx, userID)
}

// Verify resolves a raw session token to the current identity record. The
// record is re-fetched so role changes apply immediately, not at token issue
// time.
func (s *Service) Verify(ctx context.Context, raw string) (*Identity, error) {
	userID, err := s.tokens.ParseSession(raw)
	if err != nil {
		return nil, token.ErrInvalidToken
	}
	user, err := s.users.Find(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, token.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// MintDeskToken issues a desk token after confirming the caller already
// belongs to the desk.
func (s *Service) MintDeskToken(ctx context.Context, userID, deskID string) (string, *Desk, error) {
	desk, err := s.desks.Find(ctx, deskID)
	if err != nil {
		return "", nil, err
	}
	if !desk.HasMember(userID) {
		return "", nil, ErrNotMember
	}
	signed, _, err := s.tokens.IssueDesk(desk.ID)
	if err != nil {
		return "", nil, err
	}
	return signed, desk, nil
}

// VerifyDesk validates a desk token and re-checks that the user is currently
// a member of that desk. Membership is never cached across requests.
func (s *Service) VerifyDesk(ctx context.Context, raw, userID string) (*Desk, error) {
	deskID, err := s.tokens.ParseDesk(raw)
	if err != nil {
		return nil, token.ErrInvalidToken
	}
	desk, err := s.desks.Find(ctx, deskID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	if !desk.HasMember(userID) {
		return nil, ErrNotMember
	}
	return desk, nil
}

// CreateDesk opens a new workspace with the creator as its first member.
func (s *Service) CreateDesk(ctx context.Context, ownerID, title string) (*Desk, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	desk := &Desk{
		ID:        ids.New(),
		Title:     title,
		Members:   []string{ownerID},
		CreatedAt: s.now().UTC(),
	}
	if err := s.desks.Create(ctx, desk); err != nil {
		return nil, err
	}
	return desk, nil
}

// Desks lists the workspaces the user belongs to.
func (s *Service) Desks(ctx context.Context, userID string) ([]*Desk, error) {
	return s.desks.ListByMember(ctx, userID)
}

// AddDeskMember adds a user to a desk's member set.
func (s *Service) AddDeskMember(ctx context.Context, deskID, userID string) error {
	if _, err := s.users.Find(ctx, userID); err != nil {
		return err
	}
	return s.desks.AddMember(ctx, deskID, userID)
}

// RemoveDeskMember drops a user from a desk's member set. The next request
// carrying a still-valid desk token for this desk will be denied.
func (s *Service) RemoveDeskMember(ctx context.Context, deskID, userID string) error {
	return s.desks.RemoveMember(ctx, deskID, userID)
}

// ProfileUpdate carries profile edits; nil pointers mean "unchanged".
type ProfileUpdate struct {
	Name            *string
	ProfileImageURL *string
	Password        *string
}

// UpdateProfile applies profile edits for the given user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*Identity, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		user.Name = name
	}
	if upd.ProfileImageURL != nil {
		user.ProfileImageURL = strings.TrimSpace(*upd.ProfileImageURL)
	}
	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if pw == "" {
			return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangeRole sets a user's role. Gating (admin-only) happens at the route.
func (s *Service) ChangeRole(ctx context.Context, userID string, newRole role.Role) (*Identity, error) {
	if !newRole.Valid() {
		return nil, fmt.Errorf("%w: %q", role.ErrUnknown, newRole)
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Role = newRole
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
