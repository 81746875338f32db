package token

import (
	"testing"
	"time"

	"deskhub.org/internal/role"
)

func newTestManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	opts := []Option{}
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	m, err := NewManager(Config{SigningKey: []byte("test-secret")}, opts...)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerRequiresKey(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("expected error for empty signing key")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	signed, expiresAt, err := m.IssueSession("user-1")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expiry should be in the future")
	}
	userID, err := m.ParseSession(signed)
	if err != nil {
		t.Fatalf("ParseSession failed: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("subject = %q, want user-1", userID)
	}
}

func TestInviteRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	signed, _, err := m.IssueInvite(role.Admin)
	if err != nil {
		t.Fatalf("IssueInvite failed: %v", err)
	}
	granted, err := m.ParseInvite(signed)
	if err != nil {
		t.Fatalf("ParseInvite failed: %v", err)
	}
	if granted != role.Admin {
		t.Fatalf("granted role = %q, want admin", granted)
	}
	if _, _, err := m.IssueInvite(role.Role("root")); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// A token of one kind must never verify as another kind.
func TestTokenKindsNotInterchangeable(t *testing.T) {
	m := newTestManager(t, nil)
	session, _, _ := m.IssueSession("user-1")
	desk, _, _ := m.IssueDesk("desk-1")
	invite, _, _ := m.IssueInvite(role.User)

	if _, err := m.ParseDesk(session); err == nil {
		t.Fatal("session token parsed as desk token")
	}
	if _, err := m.ParseSession(desk); err == nil {
		t.Fatal("desk token parsed as session token")
	}
	if _, err := m.ParseInvite(session); err == nil {
		t.Fatal("session token parsed as invite token")
	}
	if _, err := m.ParseSession(invite); err == nil {
		t.Fatal("invite token parsed as session token")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	m := newTestManager(t, nil)
	signed, _, _ := m.IssueSession("user-1")
	tampered := signed[:len(signed)-2] + "xx"
	if _, err := m.ParseSession(tampered); err == nil {
		t.Fatal("tampered token accepted")
	}

	other, _ := NewManager(Config{SigningKey: []byte("other-secret")})
	if _, err := other.ParseSession(signed); err == nil {
		t.Fatal("token accepted under wrong key")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issuedAt := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	now := issuedAt
	m := newTestManager(t, func() time.Time { return now })

	signed, _, err := m.IssueSession("user-1")
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if _, err := m.ParseSession(signed); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	now = issuedAt.Add(7*24*time.Hour + time.Minute)
	if _, err := m.ParseSession(signed); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestEmptyTokenRejected(t *testing.T) {
	m := newTestManager(t, nil)
	if _, err := m.ParseSession(""); err == nil {
		t.Fatal("empty token accepted")
	}
	if _, err := m.ParseSession("  "); err == nil {
		t.Fatal("blank token accepted")
	}
}
