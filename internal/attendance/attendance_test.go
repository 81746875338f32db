package attendance_test

import (
	"context"
	"testing"
	"time"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/store/mem"
)

func TestOpenAndClose(t *testing.T) {
	store := mem.New()
	now := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	svc := attendance.NewService(store.Sessions(), attendance.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	if _, err := svc.Open(ctx, "user-1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	now = now.Add(8 * time.Hour)
	closed, err := svc.Close(ctx, "user-1")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !closed {
		t.Fatal("expected an open session to close")
	}

	sessions, err := svc.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].CheckOut == nil {
		t.Fatal("session should be closed")
	}
	if got := sessions[0].WorkedHours(); got != 8.0 {
		t.Fatalf("WorkedHours = %v, want 8.0", got)
	}
}

// A session opened more than the lookback window ago is left alone; one
// opened inside the window is closable.
func TestCloseLookbackWindow(t *testing.T) {
	store := mem.New()
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	now := start
	svc := attendance.NewService(store.Sessions(), attendance.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	if _, err := svc.Open(ctx, "user-1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	now = start.Add(13 * time.Hour)
	closed, err := svc.Close(ctx, "user-1")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed {
		t.Fatal("session outside the 12h window should not close")
	}

	now = start
	if _, err := svc.Open(ctx, "user-2"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	now = start.Add(1 * time.Hour)
	closed, err = svc.Close(ctx, "user-2")
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !closed {
		t.Fatal("session inside the window should close")
	}
}

func TestCloseWithoutOpenSession(t *testing.T) {
	store := mem.New()
	svc := attendance.NewService(store.Sessions())

	closed, err := svc.Close(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Close should not error when nothing is open: %v", err)
	}
	if closed {
		t.Fatal("nothing to close")
	}
}

func TestCloseNewestOpenFirst(t *testing.T) {
	store := mem.New()
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	now := start
	svc := attendance.NewService(store.Sessions(), attendance.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	first, _ := svc.Open(ctx, "user-1")
	now = start.Add(2 * time.Hour)
	second, _ := svc.Open(ctx, "user-1")

	now = start.Add(3 * time.Hour)
	if _, err := svc.Close(ctx, "user-1"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sessions, _ := svc.ListByUser(ctx, "user-1")
	for _, s := range sessions {
		switch s.ID {
		case second.ID:
			if s.CheckOut == nil {
				t.Fatal("newest open session should have been closed")
			}
		case first.ID:
			if s.CheckOut != nil {
				t.Fatal("older session should remain open")
			}
		}
	}
}

func TestWorkedHoursRounding(t *testing.T) {
	in := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	out := in.Add(7*time.Hour + 44*time.Minute)
	s := attendance.Session{CheckIn: in, CheckOut: &out}
	if got := s.WorkedHours(); got != 7.7 {
		t.Fatalf("WorkedHours = %v, want 7.7", got)
	}
	open := attendance.Session{CheckIn: in}
	if got := open.WorkedHours(); got != 0 {
		t.Fatalf("open session WorkedHours = %v, want 0", got)
	}
}

func TestWeekBounds(t *testing.T) {
	from, to := attendance.WeekBounds(2026, 10)
	if from.Weekday() != time.Monday {
		t.Fatalf("week should start on Monday, got %s", from.Weekday())
	}
	if to.Sub(from) != 7*24*time.Hour {
		t.Fatalf("week should span 7 days")
	}
	year, week := from.ISOWeek()
	if year != 2026 || week != 10 {
		t.Fatalf("bounds start in week %d/%d, want 2026/10", year, week)
	}
	year, week = to.Add(-time.Second).ISOWeek()
	if year != 2026 || week != 10 {
		t.Fatalf("bounds end in week %d/%d, want 2026/10", year, week)
	}
}

func TestDeleteWeek(t *testing.T) {
	store := mem.New()
	inWeek := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC) // week 10
	outWeek := inWeek.AddDate(0, 0, 7)
	now := inWeek
	svc := attendance.NewService(store.Sessions(), attendance.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	_, _ = svc.Open(ctx, "user-1")
	now = outWeek
	_, _ = svc.Open(ctx, "user-1")

	deleted, err := svc.DeleteWeek(ctx, 2026, 10)
	if err != nil {
		t.Fatalf("DeleteWeek failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	sessions, _ := svc.ListByUser(ctx, "user-1")
	if len(sessions) != 1 {
		t.Fatalf("expected 1 remaining session, got %d", len(sessions))
	}
}
