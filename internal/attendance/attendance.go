// Package attendance tracks check-in/check-out intervals per identity,
// derived from the login/logout lifecycle.
package attendance

import (
	"context"
	"errors"
	"math"
	"time"

	"deskhub.org/internal/ids"
)

// Lookback bounds how far back Close searches for an open session. An open
// session older than this is left alone rather than closed ambiguously.
const Lookback = 12 * time.Hour

// ErrNotFound indicates no matching session record.
var ErrNotFound = errors.New("attendance: not found")

// Session is one check-in/check-out interval for one identity.
type Session struct {
	ID       string     `json:"id"`
	UserID   string     `json:"userId"`
	CheckIn  time.Time  `json:"checkIn"`
	CheckOut *time.Time `json:"checkOut,omitempty"`
}

// WorkedHours returns the interval length in hours rounded to one decimal.
// Open sessions report zero.
func (s Session) WorkedHours() float64 {
	if s.CheckOut == nil {
		return 0
	}
	h := s.CheckOut.Sub(s.CheckIn).Hours()
	return math.Round(h*10) / 10
}

// Week returns the ISO year and week (Monday start) of the check-in.
func (s Session) Week() (year, week int) {
	return s.CheckIn.UTC().ISOWeek()
}

// Store persists session records.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// LatestOpen returns the most recent record for the user with a null
	// check-out and a check-in at or after since, or ErrNotFound.
	LatestOpen(ctx context.Context, userID string, since time.Time) (*Session, error)
	Close(ctx context.Context, id string, at time.Time) error
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	ListAll(ctx context.Context) ([]Session, error)
	// DeleteRange removes sessions with check-in in [from, to) and reports
	// how many were removed.
	DeleteRange(ctx context.Context, from, to time.Time) (int, error)
}

// Service implements the session ledger rules.
type Service struct {
	store Store
	now   func() time.Time
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
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open inserts a fresh open session for the user. No uniqueness is enforced:
// concurrent logins may create overlapping opens, which is an accepted
// tolerance of the ledger.
func (s *Service) Open(ctx context.Context, userID string) (*Session, error) {
	rec := &Session{
		ID:      ids.New(),
		UserID:  userID,
		CheckIn: s.now().UTC(),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Close stamps the most recent open session within the lookback window.
// It reports false (and no error) when no such session exists; closing is
// best-effort and must never block a logout.
func (s *Service) Close(ctx context.Context, userID string) (bool, error) {
	now := s.now().UTC()
	open, err := s.store.LatestOpen(ctx, userID, now.Add(-Lookback))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.store.Close(ctx, open.ID, now); err != nil {
		return false, err
	}
	return true, nil
}

// ListByUser returns all sessions for one identity.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	return s.store.ListByUser(ctx, userID)
}

// ListAll returns every session record.
func (s *Service) ListAll(ctx context.Context) ([]Session, error) {
	return s.store.ListAll(ctx)
}

// DeleteWeek removes all sessions whose check-in falls in the given ISO week.
func (s *Service) DeleteWeek(ctx context.Context, year, week int) (int, error) {
	from, to := WeekBounds(year, week)
	return s.store.DeleteRange(ctx, from, to)
}

// WeekBounds returns the UTC [start, end) interval of an ISO week
// (week starts Monday; week 1 contains January 4th).
func WeekBounds(year, week int) (time.Time, time.Time) {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := jan4.AddDate(0, 0, 1-weekday+(week-1)*7)
	return monday, monday.AddDate(0, 0, 7)
}
