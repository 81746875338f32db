// Package pg implements every store interface on PostgreSQL via database/sql
// and the pgx stdlib driver. Multi-record mutations run inside one BeginTx.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/identity"
	"deskhub.org/internal/role"
)

// Store wraps the connection pool and hands out typed facets.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with pool settings tuned for a small API node.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool (used by tests with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for readiness probes and the migration runner.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() identity.UserStore  { return &userStore{db: s.db} }
func (s *Store) Desks() identity.DeskStore  { return &deskStore{db: s.db} }
func (s *Store) Sessions() attendance.Store { return &sessionStore{db: s.db} }

// Users ---------------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *identity.Identity) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, name, email, password_hash, profile_image_url, role, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.ProfileImageURL, string(u.Role), u.CreatedAt, u.UpdatedAt)
	return err
}

const userColumns = `id, name, email, password_hash, profile_image_url, role, created_at, updated_at`

func scanUser(row *sql.Row) (*identity.Identity, error) {
	var u identity.Identity
	var roleName string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.ProfileImageURL, &roleName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = role.Role(roleName)
	return &u, nil
}

func (s *userStore) Find(ctx context.Context, id string) (*identity.Identity, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *userStore) Update(ctx context.Context, u *identity.Identity) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set name=$2, email=$3, password_hash=$4, profile_image_url=$5, role=$6, updated_at=$7
		where id=$1
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.ProfileImageURL, string(u.Role), u.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Desks ---------------------------------------------------------------------

type deskStore struct{ db *sql.DB }

func (s *deskStore) Create(ctx context.Context, d *identity.Desk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into desks(id, title, created_at) values ($1,$2,$3)`,
		d.ID, d.Title, d.CreatedAt); err != nil {
		return err
	}
	for _, member := range d.Members {
		if _, err := tx.ExecContext(ctx,
			`insert into desk_members(desk_id, user_id) values ($1,$2) on conflict do nothing`,
			d.ID, member); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *deskStore) Find(ctx context.Context, id string) (*identity.Desk, error) {
	var d identity.Desk
	err := s.db.QueryRowContext(ctx,
		`select id, title, created_at from desks where id=$1`, id).
		Scan(&d.ID, &d.Title, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select user_id from desk_members where desk_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		d.Members = append(d.Members, member)
	}
	return &d, rows.Err()
}

func (s *deskStore) ListByMember(ctx context.Context, userID string) ([]*identity.Desk, error) {
	rows, err := s.db.QueryContext(ctx, `
		select d.id, d.title, d.created_at
		from desks d
		join desk_members m on m.desk_id = d.id
		where m.user_id = $1
		order by d.created_at asc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*identity.Desk
	for rows.Next() {
		var d identity.Desk
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, d := range out {
		full, err := s.Find(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		d.Members = full.Members
	}
	return out, nil
}

func (s *deskStore) AddMember(ctx context.Context, deskID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into desk_members(desk_id, user_id) values ($1,$2) on conflict do nothing`,
		deskID, userID)
	return err
}

func (s *deskStore) RemoveMember(ctx context.Context, deskID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from desk_members where desk_id=$1 and user_id=$2`, deskID, userID)
	return err
}

// Sessions ------------------------------------------------------------------

type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, rec *attendance.Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into attendance_sessions(id, user_id, check_in, check_out) values ($1,$2,$3,$4)`,
		rec.ID, rec.UserID, rec.CheckIn, rec.CheckOut)
	return err
}

func (s *sessionStore) LatestOpen(ctx context.Context, userID string, since time.Time) (*attendance.Session, error) {
	var rec attendance.Session
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, check_in
		from attendance_sessions
		where user_id=$1 and check_out is null and check_in >= $2
		order by check_in desc
		limit 1
	`, userID, since).Scan(&rec.ID, &rec.UserID, &rec.CheckIn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attendance.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *sessionStore) Close(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update attendance_sessions set check_out=$2 where id=$1 and check_out is null`, id, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (s *sessionStore) ListByUser(ctx context.Context, userID string) ([]attendance.Session, error) {
	return s.list(ctx,
		`select id, user_id, check_in, check_out from attendance_sessions where user_id=$1 order by check_in asc`,
		userID)
}

func (s *sessionStore) ListAll(ctx context.Context) ([]attendance.Session, error) {
	return s.list(ctx,
		`select id, user_id, check_in, check_out from attendance_sessions order by check_in asc`)
}

func (s *sessionStore) list(ctx context.Context, query string, args ...any) ([]attendance.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.Session
	for rows.Next() {
		var rec attendance.Session
		var checkOut sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CheckIn, &checkOut); err != nil {
			return nil, err
		}
		if checkOut.Valid {
			t := checkOut.Time
			rec.CheckOut = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sessionStore) DeleteRange(ctx context.Context, from, to time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from attendance_sessions where check_in >= $1 and check_in < $2`, from, to)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// helpers ---------------------------------------------------------------

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}
