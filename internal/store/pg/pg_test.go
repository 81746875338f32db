package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/identity"
	"deskhub.org/internal/policy"
	"deskhub.org/internal/resource"
	"deskhub.org/internal/role"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestUserFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select id, name, email, password_hash.*from users").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Users().Find(context.Background(), "missing")
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "profile_image_url", "role", "created_at", "updated_at"}).
		AddRow("u1", "Ana", "ana@example.com", "hash", "", "admin", now, now)
	mock.ExpectQuery("select id, name, email, password_hash.*from users where email").
		WithArgs("ana@example.com").
		WillReturnRows(rows)

	user, err := store.Users().FindByEmail(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.Role != role.Admin {
		t.Fatalf("role = %s, want admin", user.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeskCreateRunsInTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into desks").
		WithArgs("d1", "Oficina", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into desk_members").
		WithArgs("d1", "u1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Desks().Create(context.Background(), &identity.Desk{
		ID: "d1", Title: "Oficina", Members: []string{"u1"}, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionCloseAlreadyClosed(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update attendance_sessions set check_out").
		WithArgs("s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Sessions().Close(context.Background(), "s1", time.Now().UTC())
	if !errors.Is(err, attendance.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordSaleCommitsBalanceAndTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select balance from accounts.*for update").
		WithArgs("d1", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(100)))
	mock.ExpectExec("update accounts set balance = balance").
		WithArgs("d1", "a1", int64(250)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into account_transactions").
		WithArgs(sqlmock.AnyArg(), "d1", "a1", int64(250), "venta", "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec, err := store.Accounts().RecordSale(context.Background(), "d1", "a1", 250, "venta", "u1")
	if err != nil {
		t.Fatalf("RecordSale: %v", err)
	}
	if rec.Amount != 250 || rec.AccountID != "a1" {
		t.Fatalf("unexpected transaction: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordSaleUnknownAccount(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select balance from accounts.*for update").
		WithArgs("d1", "missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Accounts().RecordSale(context.Background(), "d1", "missing", 100, "", "u1")
	if !errors.Is(err, resource.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordMovementRejectsUnderflow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select stock from inventory_items.*for update").
		WithArgs("d1", "i1").
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(int64(2)))
	mock.ExpectRollback()

	_, err := store.Items().RecordMovement(context.Background(), "d1", "i1", -5, "venta", "u1")
	if !errors.Is(err, resource.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTaskListFiltersByAssignment(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "desk_id", "title", "description", "folder_id", "due_date",
		"checklist", "status", "progress", "assigned_to", "created_by",
		"created_at", "updated_at",
	}).AddRow("t1", "d1", "asignada", "", "", nil, []byte(`[]`), "Pendiente", 0.0, []byte(`["u1"]`), "admin-1", now, now)
	mock.ExpectQuery(`select id, desk_id, title.*from tasks where desk_id=\$1 and assigned_to`).
		WithArgs("d1", sqlmock.AnyArg()).
		WillReturnRows(rows)

	tasks, err := store.Tasks().List(context.Background(), policy.Filter{DeskID: "d1", MemberID: "u1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 || tasks[0].AssignedTo[0] != "u1" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
