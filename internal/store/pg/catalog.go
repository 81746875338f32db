package pg

import (
	"context"
	"database/sql"
	"errors"

	"deskhub.org/internal/policy"
	"deskhub.org/internal/resource"
)

var _ resource.Store = (*Store)(nil)

func (s *Store) Events() resource.EventStore        { return &eventStore{db: s.db} }
func (s *Store) Reports() resource.ReportStore      { return &reportStore{db: s.db} }
func (s *Store) Categories() resource.CategoryStore { return &categoryStore{db: s.db} }
func (s *Store) Folders() resource.FolderStore      { return &folderStore{db: s.db} }

// Events ---------------------------------------------------------------------

type eventStore struct{ db *sql.DB }

const eventColumns = `id, desk_id, title, starts_at, ends_at, assigned_to, created_by, created_at, updated_at`

func scanEvent(scan func(...any) error) (*resource.Event, error) {
	var ev resource.Event
	var assigned []byte
	err := scan(&ev.ID, &ev.DeskID, &ev.Title, &ev.Start, &ev.End, &assigned, &ev.CreatedBy, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	scanAssignees(assigned, &ev.AssignedTo)
	return &ev, nil
}

func (s *eventStore) List(ctx context.Context, f policy.Filter) ([]resource.Event, error) {
	query := `select ` + eventColumns + ` from events where desk_id=$1 order by starts_at asc`
	args := []any{f.DeskID}
	if f.MemberID != "" {
		query = `select ` + eventColumns + ` from events where desk_id=$1 and assigned_to @> $2::jsonb order by starts_at asc`
		args = append(args, memberElement(f.MemberID))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *eventStore) Find(ctx context.Context, deskID, id string) (*resource.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+eventColumns+` from events where desk_id=$1 and id=$2`, deskID, id)
	return scanEvent(row.Scan)
}

func (s *eventStore) Create(ctx context.Context, ev *resource.Event) error {
	_, err := s.db.ExecContext(ctx, `
		insert into events(id, desk_id, title, starts_at, ends_at, assigned_to, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, ev.ID, ev.DeskID, ev.Title, ev.Start, ev.End, assigneesJSON(ev.AssignedTo), ev.CreatedBy, ev.CreatedAt, ev.UpdatedAt)
	return err
}

func (s *eventStore) Update(ctx context.Context, ev *resource.Event) error {
	res, err := s.db.ExecContext(ctx, `
		update events
		set title=$3, starts_at=$4, ends_at=$5, assigned_to=$6, updated_at=$7
		where desk_id=$1 and id=$2
	`, ev.DeskID, ev.ID, ev.Title, ev.Start, ev.End, assigneesJSON(ev.AssignedTo), ev.UpdatedAt)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

func (s *eventStore) Delete(ctx context.Context, deskID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from events where desk_id=$1 and id=$2`, deskID, id)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

// Reports --------------------------------------------------------------------

type reportStore struct{ db *sql.DB }

const reportColumns = `id, desk_id, title, content, created_by, created_at, updated_at`

func scanReport(scan func(...any) error) (*resource.Report, error) {
	var rep resource.Report
	err := scan(&rep.ID, &rep.DeskID, &rep.Title, &rep.Content, &rep.CreatedBy, &rep.CreatedAt, &rep.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// List filters on the author for restricted scopes; reports carry no
// assignment list.
func (s *reportStore) List(ctx context.Context, f policy.Filter) ([]resource.Report, error) {
	query := `select ` + reportColumns + ` from reports where desk_id=$1 order by created_at asc`
	args := []any{f.DeskID}
	if f.MemberID != "" {
		query = `select ` + reportColumns + ` from reports where desk_id=$1 and created_by=$2 order by created_at asc`
		args = append(args, f.MemberID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Report
	for rows.Next() {
		rep, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

func (s *reportStore) Find(ctx context.Context, deskID, id string) (*resource.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+reportColumns+` from reports where desk_id=$1 and id=$2`, deskID, id)
	return scanReport(row.Scan)
}

func (s *reportStore) Create(ctx context.Context, rep *resource.Report) error {
	_, err := s.db.ExecContext(ctx, `
		insert into reports(id, desk_id, title, content, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, rep.ID, rep.DeskID, rep.Title, rep.Content, rep.CreatedBy, rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (s *reportStore) Update(ctx context.Context, rep *resource.Report) error {
	res, err := s.db.ExecContext(ctx, `
		update reports set title=$3, content=$4, updated_at=$5 where desk_id=$1 and id=$2
	`, rep.DeskID, rep.ID, rep.Title, rep.Content, rep.UpdatedAt)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

func (s *reportStore) Delete(ctx context.Context, deskID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from reports where desk_id=$1 and id=$2`, deskID, id)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

// Categories -----------------------------------------------------------------

type categoryStore struct{ db *sql.DB }

func (s *categoryStore) List(ctx context.Context, deskID string) ([]resource.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, desk_id, name, created_by, created_at from categories where desk_id=$1 order by created_at asc`, deskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Category
	for rows.Next() {
		var cat resource.Category
		if err := rows.Scan(&cat.ID, &cat.DeskID, &cat.Name, &cat.CreatedBy, &cat.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func (s *categoryStore) Find(ctx context.Context, deskID, id string) (*resource.Category, error) {
	var cat resource.Category
	err := s.db.QueryRowContext(ctx,
		`select id, desk_id, name, created_by, created_at from categories where desk_id=$1 and id=$2`, deskID, id).
		Scan(&cat.ID, &cat.DeskID, &cat.Name, &cat.CreatedBy, &cat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *categoryStore) Create(ctx context.Context, cat *resource.Category) error {
	_, err := s.db.ExecContext(ctx,
		`insert into categories(id, desk_id, name, created_by, created_at) values ($1,$2,$3,$4,$5)`,
		cat.ID, cat.DeskID, cat.Name, cat.CreatedBy, cat.CreatedAt)
	return err
}

func (s *categoryStore) Update(ctx context.Context, cat *resource.Category) error {
	res, err := s.db.ExecContext(ctx,
		`update categories set name=$3 where desk_id=$1 and id=$2`, cat.DeskID, cat.ID, cat.Name)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

func (s *categoryStore) Delete(ctx context.Context, deskID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from categories where desk_id=$1 and id=$2`, deskID, id)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

// Folders --------------------------------------------------------------------

type folderStore struct{ db *sql.DB }

func (s *folderStore) List(ctx context.Context, deskID string) ([]resource.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, desk_id, name, created_by, created_at from folders where desk_id=$1 order by created_at asc`, deskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Folder
	for rows.Next() {
		var f resource.Folder
		if err := rows.Scan(&f.ID, &f.DeskID, &f.Name, &f.CreatedBy, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *folderStore) Find(ctx context.Context, deskID, id string) (*resource.Folder, error) {
	var f resource.Folder
	err := s.db.QueryRowContext(ctx,
		`select id, desk_id, name, created_by, created_at from folders where desk_id=$1 and id=$2`, deskID, id).
		Scan(&f.ID, &f.DeskID, &f.Name, &f.CreatedBy, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *folderStore) Create(ctx context.Context, f *resource.Folder) error {
	_, err := s.db.ExecContext(ctx,
		`insert into folders(id, desk_id, name, created_by, created_at) values ($1,$2,$3,$4,$5)`,
		f.ID, f.DeskID, f.Name, f.CreatedBy, f.CreatedAt)
	return err
}

func (s *folderStore) Update(ctx context.Context, f *resource.Folder) error {
	res, err := s.db.ExecContext(ctx,
		`update folders set name=$3 where desk_id=$1 and id=$2`, f.DeskID, f.ID, f.Name)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

func (s *folderStore) Delete(ctx context.Context, deskID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from folders where desk_id=$1 and id=$2`, deskID, id)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}
