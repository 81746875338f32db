// Package token issues and verifies the three signed credentials used by the
// API: session tokens (who), desk tokens (which active workspace) and invite
// tokens (role grant at registration). All three share one signing mechanism
// but carry a discriminating use claim, so they are never interchangeable.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"deskhub.org/internal/role"
)

const (
	defaultIssuer     = "deskhub"
	defaultSessionTTL = 7 * 24 * time.Hour
	defaultInviteTTL  = 7 * 24 * time.Hour

	useSession = "session"
	useDesk    = "desk"
	useInvite  = "invite"
)

// ErrInvalidToken indicates the token failed signature, expiry or claim checks.
var ErrInvalidToken = errors.New("token: invalid token")

// Config carries everything the manager needs. The signing key is injected
// here at construction time, never read from ambient process state.
type Config struct {
	SigningKey []byte
	Issuer     string
	SessionTTL time.Duration
	InviteTTL  time.Duration
}

// Claims is the JWT payload for all three token kinds.
type Claims struct {
	TokenUse string `json:"token_use"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with HS256.
type Manager struct {
	cfg Config
	now func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. The signing key is required.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token: signing key is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = defaultInviteTTL
	}
	m := &Manager{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SessionTTL reports the configured session token lifetime (cookie expiry).
func (m *Manager) SessionTTL() time.Duration { return m.cfg.SessionTTL }

// IssueSession signs an identity token for the given user.
func (m *Manager) IssueSession(userID string) (string, time.Time, error) {
	return m.issue(useSession, userID, "", m.cfg.SessionTTL)
}

// IssueDesk signs a workspace token for the given desk.
func (m *Manager) IssueDesk(deskID string) (string, time.Time, error) {
	return m.issue(useDesk, deskID, "", m.cfg.SessionTTL)
}

// IssueInvite signs a role-grant token. The role is the only claim it carries.
func (m *Manager) IssueInvite(r role.Role) (string, time.Time, error) {
	if !r.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: %q", role.ErrUnknown, r)
	}
	return m.issue(useInvite, "", string(r), m.cfg.InviteTTL)
}

// ParseSession verifies an identity token and returns the user id.
func (m *Manager) ParseSession(raw string) (string, error) {
	claims, err := m.parse(raw, useSession)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseDesk verifies a workspace token and returns the desk id.
func (m *Manager) ParseDesk(raw string) (string, error) {
	claims, err := m.parse(raw, useDesk)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ParseInvite verifies an invite token and returns the granted role.
func (m *Manager) ParseInvite(raw string) (role.Role, error) {
	claims, err := m.parse(raw, useInvite)
	if err != nil {
		return "", err
	}
	granted, err := role.Parse(claims.Role)
	if err != nil {
		return "", ErrInvalidToken
	}
	return granted, nil
}

func (m *Manager) issue(use, subject, grantedRole string, ttl time.Duration) (string, time.Time, error) {
	now := m.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		TokenUse: use,
		Role:     grantedRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *Manager) parse(raw, wantUse string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.cfg.SigningKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != m.cfg.Issuer {
		return nil, ErrInvalidToken
	}
	if claims.TokenUse != wantUse {
		return nil, ErrInvalidToken
	}
	if wantUse != useInvite && strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
