// Package mem provides a mutex-guarded in-memory implementation of every
// store interface. It backs tests and DSN-less development runs.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/identity"
	"deskhub.org/internal/ids"
	"deskhub.org/internal/policy"
	"deskhub.org/internal/resource"
)

// Store holds all state behind one lock and hands out typed facets, the same
// shape the SQL store exposes. Multi-record mutations (sale, movement) happen
// under a single lock hold, mirroring the transactional boundary BeginTx
// gives the SQL store.
type Store struct {
	mu sync.RWMutex

	users map[string]identity.Identity
	desks map[string]identity.Desk

	sessions []attendance.Session

	accounts     map[string]resource.Account
	transactions []resource.Transaction
	tasks        map[string]resource.Task
	items        map[string]resource.Item
	movements    []resource.Movement
	events       map[string]resource.Event
	reports      map[string]resource.Report
	categories   map[string]resource.Category
	folders      map[string]resource.Folder
}

var _ resource.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]identity.Identity),
		desks:      make(map[string]identity.Desk),
		accounts:   make(map[string]resource.Account),
		tasks:      make(map[string]resource.Task),
		items:      make(map[string]resource.Item),
		events:     make(map[string]resource.Event),
		reports:    make(map[string]resource.Report),
		categories: make(map[string]resource.Category),
		folders:    make(map[string]resource.Folder),
	}
}

func (s *Store) Users() identity.UserStore          { return &userStore{s} }
func (s *Store) Desks() identity.DeskStore          { return &deskStore{s} }
func (s *Store) Sessions() attendance.Store         { return &sessionStore{s} }
func (s *Store) Accounts() resource.AccountStore    { return &accountStore{s} }
func (s *Store) Tasks() resource.TaskStore          { return &taskStore{s} }
func (s *Store) Items() resource.ItemStore          { return &itemStore{s} }
func (s *Store) Events() resource.EventStore        { return &eventStore{s} }
func (s *Store) Reports() resource.ReportStore      { return &reportStore{s} }
func (s *Store) Categories() resource.CategoryStore { return &categoryStore{s} }
func (s *Store) Folders() resource.FolderStore      { return &folderStore{s} }

// Users ---------------------------------------------------------------------

type userStore struct{ s *Store }

func (u *userStore) Create(ctx context.Context, rec *identity.Identity) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	u.s.users[rec.ID] = *rec
	return nil
}

func (u *userStore) Find(ctx context.Context, id string) (*identity.Identity, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	rec, ok := u.s.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (u *userStore) FindByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, rec := range u.s.users {
		if rec.Email == email {
			out := rec
			return &out, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (u *userStore) Update(ctx context.Context, rec *identity.Identity) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[rec.ID]; !ok {
		return identity.ErrNotFound
	}
	u.s.users[rec.ID] = *rec
	return nil
}

// Desks ---------------------------------------------------------------------

type deskStore struct{ s *Store }

func (d *deskStore) Create(ctx context.Context, rec *identity.Desk) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.desks[rec.ID] = cloneDesk(*rec)
	return nil
}

func (d *deskStore) Find(ctx context.Context, id string) (*identity.Desk, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	rec, ok := d.s.desks[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	out := cloneDesk(rec)
	return &out, nil
}

func (d *deskStore) ListByMember(ctx context.Context, userID string) ([]*identity.Desk, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	var out []*identity.Desk
	for _, rec := range d.s.desks {
		if (&rec).HasMember(userID) {
			c := cloneDesk(rec)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *deskStore) AddMember(ctx context.Context, deskID, userID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	rec, ok := d.s.desks[deskID]
	if !ok {
		return identity.ErrNotFound
	}
	if (&rec).HasMember(userID) {
		return nil
	}
	rec.Members = append(rec.Members, userID)
	d.s.desks[deskID] = rec
	return nil
}

func (d *deskStore) RemoveMember(ctx context.Context, deskID, userID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	rec, ok := d.s.desks[deskID]
	if !ok {
		return identity.ErrNotFound
	}
	members := rec.Members[:0:0]
	for _, m := range rec.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	rec.Members = members
	d.s.desks[deskID] = rec
	return nil
}

func cloneDesk(d identity.Desk) identity.Desk {
	members := make([]string, len(d.Members))
	copy(members, d.Members)
	d.Members = members
	return d
}

// Sessions ------------------------------------------------------------------

type sessionStore struct{ s *Store }

func (st *sessionStore) Create(ctx context.Context, rec *attendance.Session) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.sessions = append(st.s.sessions, *rec)
	return nil
}

func (st *sessionStore) LatestOpen(ctx context.Context, userID string, since time.Time) (*attendance.Session, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	var found *attendance.Session
	for i := range st.s.sessions {
		rec := st.s.sessions[i]
		if rec.UserID != userID || rec.CheckOut != nil || rec.CheckIn.Before(since) {
			continue
		}
		if found == nil || rec.CheckIn.After(found.CheckIn) {
			c := rec
			found = &c
		}
	}
	if found == nil {
		return nil, attendance.ErrNotFound
	}
	return found, nil
}

func (st *sessionStore) Close(ctx context.Context, id string, at time.Time) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.sessions {
		if st.s.sessions[i].ID == id {
			out := at
			st.s.sessions[i].CheckOut = &out
			return nil
		}
	}
	return attendance.ErrNotFound
}

func (st *sessionStore) ListByUser(ctx context.Context, userID string) ([]attendance.Session, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	var out []attendance.Session
	for _, rec := range st.s.sessions {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (st *sessionStore) ListAll(ctx context.Context) ([]attendance.Session, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()
	out := make([]attendance.Session, len(st.s.sessions))
	copy(out, st.s.sessions)
	return out, nil
}

func (st *sessionStore) DeleteRange(ctx context.Context, from, to time.Time) (int, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	kept := st.s.sessions[:0:0]
	removed := 0
	for _, rec := range st.s.sessions {
		if !rec.CheckIn.Before(from) && rec.CheckIn.Before(to) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	st.s.sessions = kept
	return removed, nil
}

// Accounts ------------------------------------------------------------------

type accountStore struct{ s *Store }

func (a *accountStore) List(ctx context.Context, f policy.Filter) ([]resource.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []resource.Account
	for _, rec := range a.s.accounts {
		if rec.Visible(f) {
			out = append(out, rec)
		}
	}
	sortByID(out, func(r resource.Account) string { return r.ID })
	return out, nil
}

func (a *accountStore) Find(ctx context.Context, deskID, id string) (*resource.Account, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	rec, ok := a.s.accounts[id]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (a *accountStore) Create(ctx context.Context, rec *resource.Account) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.accounts[rec.ID] = *rec
	return nil
}

func (a *accountStore) Update(ctx context.Context, rec *resource.Account) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	existing, ok := a.s.accounts[rec.ID]
	if !ok || existing.DeskID != rec.DeskID {
		return resource.ErrNotFound
	}
	rec.Balance = existing.Balance
	a.s.accounts[rec.ID] = *rec
	return nil
}

func (a *accountStore) Delete(ctx context.Context, deskID, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	rec, ok := a.s.accounts[id]
	if !ok || rec.DeskID != deskID {
		return resource.ErrNotFound
	}
	delete(a.s.accounts, id)
	return nil
}

func (a *accountStore) RecordSale(ctx context.Context, deskID, accountID string, amount int64, concept, actorID string) (*resource.Transaction, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	rec, ok := a.s.accounts[accountID]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	rec.Balance += amount
	a.s.accounts[accountID] = rec

	tx := resource.Transaction{
		ID:        ids.New(),
		DeskID:    deskID,
		AccountID: accountID,
		Amount:    amount,
		Concept:   concept,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}
	a.s.transactions = append(a.s.transactions, tx)
	return &tx, nil
}

func (a *accountStore) ListTransactions(ctx context.Context, deskID, accountID string) ([]resource.Transaction, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []resource.Transaction
	for _, tx := range a.s.transactions {
		if tx.DeskID == deskID && tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Tasks ---------------------------------------------------------------------

type taskStore struct{ s *Store }

func (t *taskStore) List(ctx context.Context, f policy.Filter) ([]resource.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []resource.Task
	for _, rec := range t.s.tasks {
		if rec.Visible(f) {
			out = append(out, rec)
		}
	}
	sortByID(out, func(r resource.Task) string { return r.ID })
	return out, nil
}

func (t *taskStore) Find(ctx context.Context, deskID, id string) (*resource.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.tasks[id]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (t *taskStore) Create(ctx context.Context, rec *resource.Task) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.tasks[rec.ID] = *rec
	return nil
}

func (t *taskStore) Update(ctx context.Context, rec *resource.Task) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	existing, ok := t.s.tasks[rec.ID]
	if !ok || existing.DeskID != rec.DeskID {
		return resource.ErrNotFound
	}
	t.s.tasks[rec.ID] = *rec
	return nil
}

func (t *taskStore) Delete(ctx context.Context, deskID, id string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	rec, ok := t.s.tasks[id]
	if !ok || rec.DeskID != deskID {
		return resource.ErrNotFound
	}
	delete(t.s.tasks, id)
	return nil
}

// Items ---------------------------------------------------------------------

type itemStore struct{ s *Store }

func (i *itemStore) List(ctx context.Context, f policy.Filter) ([]resource.Item, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	var out []resource.Item
	for _, rec := range i.s.items {
		if rec.Visible(f) {
			out = append(out, rec)
		}
	}
	sortByID(out, func(r resource.Item) string { return r.ID })
	return out, nil
}

func (i *itemStore) Find(ctx context.Context, deskID, id string) (*resource.Item, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	rec, ok := i.s.items[id]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (i *itemStore) Create(ctx context.Context, rec *resource.Item) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	i.s.items[rec.ID] = *rec
	return nil
}

func (i *itemStore) Update(ctx context.Context, rec *resource.Item) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	existing, ok := i.s.items[rec.ID]
	if !ok || existing.DeskID != rec.DeskID {
		return resource.ErrNotFound
	}
	rec.Stock = existing.Stock
	i.s.items[rec.ID] = *rec
	return nil
}

func (i *itemStore) Delete(ctx context.Context, deskID, id string) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	rec, ok := i.s.items[id]
	if !ok || rec.DeskID != deskID {
		return resource.ErrNotFound
	}
	delete(i.s.items, id)
	return nil
}

func (i *itemStore) RecordMovement(ctx context.Context, deskID, itemID string, delta int64, note, actorID string) (*resource.Movement, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	rec, ok := i.s.items[itemID]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	if rec.Stock+delta < 0 {
		return nil, resource.ErrInsufficientStock
	}
	rec.Stock += delta
	i.s.items[itemID] = rec

	mv := resource.Movement{
		ID:        ids.New(),
		DeskID:    deskID,
		ItemID:    itemID,
		Delta:     delta,
		Note:      note,
		CreatedBy: actorID,
		CreatedAt: time.Now().UTC(),
	}
	i.s.movements = append(i.s.movements, mv)
	return &mv, nil
}

func (i *itemStore) ListMovements(ctx context.Context, deskID, itemID string) ([]resource.Movement, error) {
	i.s.mu.RLock()
	defer i.s.mu.RUnlock()
	var out []resource.Movement
	for _, mv := range i.s.movements {
		if mv.DeskID == deskID && mv.ItemID == itemID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// Events --------------------------------------------------------------------

type eventStore struct{ s *Store }

func (e *eventStore) List(ctx context.Context, f policy.Filter) ([]resource.Event, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	var out []resource.Event
	for _, rec := range e.s.events {
		if rec.Visible(f) {
			out = append(out, rec)
		}
	}
	sortByID(out, func(r resource.Event) string { return r.ID })
	return out, nil
}

func (e *eventStore) Find(ctx context.Context, deskID, id string) (*resource.Event, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	rec, ok := e.s.events[id]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (e *eventStore) Create(ctx context.Context, rec *resource.Event) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.events[rec.ID] = *rec
	return nil
}

func (e *eventStore) Update(ctx context.Context, rec *resource.Event) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	existing, ok := e.s.events[rec.ID]
	if !ok || existing.DeskID != rec.DeskID {
		return resource.ErrNotFound
	}
	e.s.events[rec.ID] = *rec
	return nil
}

func (e *eventStore) Delete(ctx context.Context, deskID, id string) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	rec, ok := e.s.events[id]
	if !ok || rec.DeskID != deskID {
		return resource.ErrNotFound
	}
	delete(e.s.events, id)
	return nil
}

// Reports -------------------------------------------------------------------

type reportStore struct{ s *Store }

func (r *reportStore) List(ctx context.Context, f policy.Filter) ([]resource.Report, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []resource.Report
	for _, rec := range r.s.reports {
		if rec.VisibleByCreator(f) {
			out = append(out, rec)
		}
	}
	sortByID(out, func(rec resource.Report) string { return rec.ID })
	return out, nil
}

func (r *reportStore) Find(ctx context.Context, deskID, id string) (*resource.Report, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.reports[id]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (r *reportStore) Create(ctx context.Context, rec *resource.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reports[rec.ID] = *rec
	return nil
}

func (r *reportStore) Update(ctx context.Context, rec *resource.Report) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.reports[rec.ID]
	if !ok || existing.DeskID != rec.DeskID {
		return resource.ErrNotFound
	}
	r.s.reports[rec.ID] = *rec
	return nil
}

func (r *reportStore) Delete(ctx context.Context, deskID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.reports[id]
	if !ok || rec.DeskID != deskID {
		return resource.ErrNotFound
	}
	delete(r.s.reports, id)
	return nil
}

// Categories ----------------------------------------------------------------

type categoryStore struct{ s *Store }

func (c *categoryStore) List(ctx context.Context, deskID string) ([]resource.Category, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	var out []resource.Category
	for _, rec := range c.s.categories {
		if rec.DeskID == deskID {
			out = append(out, rec)
		}
	}
	sortByID(out, func(r resource.Category) string { return r.ID })
	return out, nil
}

func (c *categoryStore) Find(ctx context.Context, deskID, id string) (*resource.Category, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	rec, ok := c.s.categories[id]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (c *categoryStore) Create(ctx context.Context, rec *resource.Category) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.categories[rec.ID] = *rec
	return nil
}

func (c *categoryStore) Update(ctx context.Context, rec *resource.Category) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	existing, ok := c.s.categories[rec.ID]
	if !ok || existing.DeskID != rec.DeskID {
		return resource.ErrNotFound
	}
	c.s.categories[rec.ID] = *rec
	return nil
}

func (c *categoryStore) Delete(ctx context.Context, deskID, id string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	rec, ok := c.s.categories[id]
	if !ok || rec.DeskID != deskID {
		return resource.ErrNotFound
	}
	delete(c.s.categories, id)
	return nil
}

// Folders -------------------------------------------------------------------

type folderStore struct{ s *Store }

func (f *folderStore) List(ctx context.Context, deskID string) ([]resource.Folder, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	var out []resource.Folder
	for _, rec := range f.s.folders {
		if rec.DeskID == deskID {
			out = append(out, rec)
		}
	}
	sortByID(out, func(r resource.Folder) string { return r.ID })
	return out, nil
}

func (f *folderStore) Find(ctx context.Context, deskID, id string) (*resource.Folder, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	rec, ok := f.s.folders[id]
	if !ok || rec.DeskID != deskID {
		return nil, resource.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (f *folderStore) Create(ctx context.Context, rec *resource.Folder) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.folders[rec.ID] = *rec
	return nil
}

func (f *folderStore) Update(ctx context.Context, rec *resource.Folder) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	existing, ok := f.s.folders[rec.ID]
	if !ok || existing.DeskID != rec.DeskID {
		return resource.ErrNotFound
	}
	f.s.folders[rec.ID] = *rec
	return nil
}

func (f *folderStore) Delete(ctx context.Context, deskID, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	rec, ok := f.s.folders[id]
	if !ok || rec.DeskID != deskID {
		return resource.ErrNotFound
	}
	delete(f.s.folders, id)
	return nil
}

func sortByID[T any](items []T, id func(T) string) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
