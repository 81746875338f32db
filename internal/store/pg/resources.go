package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"deskhub.org/internal/ids"
	"deskhub.org/internal/policy"
	"deskhub.org/internal/resource"
)

func (s *Store) Accounts() resource.AccountStore { return &accountStore{db: s.db} }
func (s *Store) Tasks() resource.TaskStore       { return &taskStore{db: s.db} }
func (s *Store) Items() resource.ItemStore       { return &itemStore{db: s.db} }

// Assignment lists live in jsonb columns; member filtering uses containment.
func assigneesJSON(assigned []string) []byte {
	if assigned == nil {
		assigned = []string{}
	}
	data, _ := json.Marshal(assigned)
	return data
}

func memberElement(userID string) []byte {
	data, _ := json.Marshal([]string{userID})
	return data
}

func scanAssignees(data []byte, dst *[]string) {
	if len(data) == 0 {
		return
	}
	var assigned []string
	if err := json.Unmarshal(data, &assigned); err == nil && len(assigned) > 0 {
		*dst = assigned
	}
}

// Accounts ------------------------------------------------------------------

type accountStore struct{ db *sql.DB }

const accountColumns = `id, desk_id, name, category_id, balance, assigned_to, created_by, created_at, updated_at`

func scanAccount(scan func(...any) error) (*resource.Account, error) {
	var a resource.Account
	var assigned []byte
	err := scan(&a.ID, &a.DeskID, &a.Name, &a.CategoryID, &a.Balance, &assigned, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	scanAssignees(assigned, &a.AssignedTo)
	return &a, nil
}

func (s *accountStore) List(ctx context.Context, f policy.Filter) ([]resource.Account, error) {
	query := `select ` + accountColumns + ` from accounts where desk_id=$1 order by created_at asc`
	args := []any{f.DeskID}
	if f.MemberID != "" {
		query = `select ` + accountColumns + ` from accounts where desk_id=$1 and assigned_to @> $2::jsonb order by created_at asc`
		args = append(args, memberElement(f.MemberID))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *accountStore) Find(ctx context.Context, deskID, id string) (*resource.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where desk_id=$1 and id=$2`, deskID, id)
	return scanAccount(row.Scan)
}

func (s *accountStore) Create(ctx context.Context, a *resource.Account) error {
	_, err := s.db.ExecContext(ctx, `
		insert into accounts(id, desk_id, name, category_id, balance, assigned_to, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.ID, a.DeskID, a.Name, a.CategoryID, a.Balance, assigneesJSON(a.AssignedTo), a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	return err
}

func (s *accountStore) Update(ctx context.Context, a *resource.Account) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set name=$3, category_id=$4, assigned_to=$5, updated_at=$6
		where desk_id=$1 and id=$2
	`, a.DeskID, a.ID, a.Name, a.CategoryID, assigneesJSON(a.AssignedTo), a.UpdatedAt)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

func (s *accountStore) Delete(ctx context.Context, deskID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from accounts where desk_id=$1 and id=$2`, deskID, id)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

// RecordSale locks the account row, adjusts the balance and appends the
// transaction record inside one database transaction.
func (s *accountStore) RecordSale(ctx context.Context, deskID, accountID string, amount int64, concept, actorID string) (*resource.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`select balance from accounts where desk_id=$1 and id=$2 for update`,
		deskID, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`update accounts set balance = balance + $3, updated_at = now() where desk_id=$1 and id=$2`,
		deskID, accountID, amount); err != nil {
		return nil, err
	}

	rec := resource.Transaction{
		ID:        ids.New(),
		DeskID:    deskID,
		AccountID: accountID,
		Amount:    amount,
		Concept:   concept,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		insert into account_transactions(id, desk_id, account_id, amount, concept, created_by, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.DeskID, rec.AccountID, rec.Amount, rec.Concept, rec.CreatedBy, rec.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *accountStore) ListTransactions(ctx context.Context, deskID, accountID string) ([]resource.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, desk_id, account_id, amount, concept, created_by, created_at
		from account_transactions
		where desk_id=$1 and account_id=$2
		order by created_at asc
	`, deskID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Transaction
	for rows.Next() {
		var rec resource.Transaction
		if err := rows.Scan(&rec.ID, &rec.DeskID, &rec.AccountID, &rec.Amount, &rec.Concept, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Tasks ---------------------------------------------------------------------

type taskStore struct{ db *sql.DB }

const taskColumns = `id, desk_id, title, description, folder_id, due_date, checklist, status, progress, assigned_to, created_by, created_at, updated_at`

func scanTask(scan func(...any) error) (*resource.Task, error) {
	var t resource.Task
	var due sql.NullTime
	var checklist, assigned []byte
	err := scan(&t.ID, &t.DeskID, &t.Title, &t.Description, &t.FolderID, &due, &checklist, &t.Status, &t.Progress, &assigned, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	if len(checklist) > 0 {
		_ = json.Unmarshal(checklist, &t.Checklist)
	}
	scanAssignees(assigned, &t.AssignedTo)
	return &t, nil
}

func (s *taskStore) List(ctx context.Context, f policy.Filter) ([]resource.Task, error) {
	query := `select ` + taskColumns + ` from tasks where desk_id=$1 order by created_at asc`
	args := []any{f.DeskID}
	if f.MemberID != "" {
		query = `select ` + taskColumns + ` from tasks where desk_id=$1 and assigned_to @> $2::jsonb order by created_at asc`
		args = append(args, memberElement(f.MemberID))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *taskStore) Find(ctx context.Context, deskID, id string) (*resource.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+taskColumns+` from tasks where desk_id=$1 and id=$2`, deskID, id)
	return scanTask(row.Scan)
}

func (s *taskStore) Create(ctx context.Context, t *resource.Task) error {
	checklist, _ := json.Marshal(t.Checklist)
	_, err := s.db.ExecContext(ctx, `
		insert into tasks(id, desk_id, title, description, folder_id, due_date, checklist, status, progress, assigned_to, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, t.ID, t.DeskID, t.Title, t.Description, t.FolderID, t.DueDate, checklist, t.Status, t.Progress, assigneesJSON(t.AssignedTo), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *taskStore) Update(ctx context.Context, t *resource.Task) error {
	checklist, _ := json.Marshal(t.Checklist)
	res, err := s.db.ExecContext(ctx, `
		update tasks
		set title=$3, description=$4, folder_id=$5, due_date=$6, checklist=$7, status=$8, progress=$9, assigned_to=$10, updated_at=$11
		where desk_id=$1 and id=$2
	`, t.DeskID, t.ID, t.Title, t.Description, t.FolderID, t.DueDate, checklist, t.Status, t.Progress, assigneesJSON(t.AssignedTo), t.UpdatedAt)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

func (s *taskStore) Delete(ctx context.Context, deskID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from tasks where desk_id=$1 and id=$2`, deskID, id)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

// Items ---------------------------------------------------------------------

type itemStore struct{ db *sql.DB }

const itemColumns = `id, desk_id, name, category_id, stock, assigned_to, created_by, created_at, updated_at`

func scanItem(scan func(...any) error) (*resource.Item, error) {
	var it resource.Item
	var assigned []byte
	err := scan(&it.ID, &it.DeskID, &it.Name, &it.CategoryID, &it.Stock, &assigned, &it.CreatedBy, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	scanAssignees(assigned, &it.AssignedTo)
	return &it, nil
}

func (s *itemStore) List(ctx context.Context, f policy.Filter) ([]resource.Item, error) {
	query := `select ` + itemColumns + ` from inventory_items where desk_id=$1 order by created_at asc`
	args := []any{f.DeskID}
	if f.MemberID != "" {
		query = `select ` + itemColumns + ` from inventory_items where desk_id=$1 and assigned_to @> $2::jsonb order by created_at asc`
		args = append(args, memberElement(f.MemberID))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *itemStore) Find(ctx context.Context, deskID, id string) (*resource.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+itemColumns+` from inventory_items where desk_id=$1 and id=$2`, deskID, id)
	return scanItem(row.Scan)
}

func (s *itemStore) Create(ctx context.Context, it *resource.Item) error {
	_, err := s.db.ExecContext(ctx, `
		insert into inventory_items(id, desk_id, name, category_id, stock, assigned_to, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, it.ID, it.DeskID, it.Name, it.CategoryID, it.Stock, assigneesJSON(it.AssignedTo), it.CreatedBy, it.CreatedAt, it.UpdatedAt)
	return err
}

func (s *itemStore) Update(ctx context.Context, it *resource.Item) error {
	res, err := s.db.ExecContext(ctx, `
		update inventory_items
		set name=$3, category_id=$4, assigned_to=$5, updated_at=$6
		where desk_id=$1 and id=$2
	`, it.DeskID, it.ID, it.Name, it.CategoryID, assigneesJSON(it.AssignedTo), it.UpdatedAt)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

func (s *itemStore) Delete(ctx context.Context, deskID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from inventory_items where desk_id=$1 and id=$2`, deskID, id)
	if err != nil {
		return err
	}
	return requireResourceRow(res)
}

// RecordMovement locks the item row, checks the stock floor and appends the
// movement inside one database transaction.
func (s *itemStore) RecordMovement(ctx context.Context, deskID, itemID string, delta int64, note, actorID string) (*resource.Movement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var stock int64
	err = tx.QueryRowContext(ctx,
		`select stock from inventory_items where desk_id=$1 and id=$2 for update`,
		deskID, itemID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, resource.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if stock+delta < 0 {
		return nil, resource.ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx,
		`update inventory_items set stock = stock + $3, updated_at = now() where desk_id=$1 and id=$2`,
		deskID, itemID, delta); err != nil {
		return nil, err
	}

	rec := resource.Movement{
		ID:        ids.New(),
		DeskID:    deskID,
		ItemID:    itemID,
		Delta:     delta,
		Note:      note,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		insert into item_movements(id, desk_id, item_id, delta, note, created_by, created_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.DeskID, rec.ItemID, rec.Delta, rec.Note, rec.CreatedBy, rec.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *itemStore) ListMovements(ctx context.Context, deskID, itemID string) ([]resource.Movement, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, desk_id, item_id, delta, note, created_by, created_at
		from item_movements
		where desk_id=$1 and item_id=$2
		order by created_at asc
	`, deskID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Movement
	for rows.Next() {
		var rec resource.Movement
		if err := rows.Scan(&rec.ID, &rec.DeskID, &rec.ItemID, &rec.Delta, &rec.Note, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func requireResourceRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return resource.ErrNotFound
	}
	return nil
}
