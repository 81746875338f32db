package resource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deskhub.org/internal/ids"
	"deskhub.org/internal/policy"
	"deskhub.org/internal/role"
)

// Caller identifies the authenticated member acting inside a desk context.
type Caller struct {
	ID     string
	Role   role.Role
	DeskID string
}

func (c Caller) scope() policy.Filter {
	return policy.Scope(c.Role, c.ID, c.DeskID)
}

// Service applies the assignment-scoped query policy and the per-resource
// mutation table in front of the store. Handlers stay thin: decode, call,
// encode.
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

func (s *Service) subject(c Caller, m *Meta) policy.Subject {
	return policy.Subject{
		Role:     c.Role,
		Assigned: m.IsAssigned(c.ID),
		Creator:  m.CreatedBy == c.ID,
	}
}

func (s *Service) newMeta(c Caller, assignedTo []string) Meta {
	now := s.now().UTC()
	return Meta{
		ID:         ids.New(),
		DeskID:     c.DeskID,
		CreatedBy:  c.ID,
		AssignedTo: dedupe(assignedTo),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Accounts -----------------------------------------------------------------

// AccountInput carries account fields; nil pointers on update mean "unchanged".
type AccountInput struct {
	Name       *string
	CategoryID *string
	AssignedTo *[]string
}

func (s *Service) ListAccounts(ctx context.Context, c Caller) ([]Account, error) {
	return s.store.Accounts().List(ctx, c.scope())
}

func (s *Service) GetAccount(ctx context.Context, c Caller, id string) (*Account, error) {
	acc, err := s.store.Accounts().Find(ctx, c.DeskID, id)
	if err != nil {
		return nil, err
	}
	if !acc.Visible(c.scope()) {
		return nil, ErrNotFound
	}
	return acc, nil
}

func (s *Service) CreateAccount(ctx context.Context, c Caller, in AccountInput) (*Account, error) {
	if !policy.Allows(policy.KindAccount, policy.ActionCreate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	name, err := requiredString(in.Name, "name")
	if err != nil {
		return nil, err
	}
	acc := &Account{Meta: s.newMeta(c, deref(in.AssignedTo)), Name: name}
	if in.CategoryID != nil {
		acc.CategoryID = strings.TrimSpace(*in.CategoryID)
	}
	if err := s.store.Accounts().Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Service) UpdateAccount(ctx context.Context, c Caller, id string, in AccountInput) (*Account, error) {
	acc, err := s.GetAccount(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(policy.KindAccount, policy.ActionUpdate, s.subject(c, &acc.Meta)) {
		return nil, ErrForbidden
	}
	if in.Name != nil {
		name, err := requiredString(in.Name, "name")
		if err != nil {
			return nil, err
		}
		acc.Name = name
	}
	if in.CategoryID != nil {
		acc.CategoryID = strings.TrimSpace(*in.CategoryID)
	}
	if in.AssignedTo != nil {
		// Reassignment is an administrative act even when the record itself
		// is editable by an assigned member.
		if !c.Role.Meets(role.Admin) {
			return nil, ErrForbidden
		}
		acc.AssignedTo = dedupe(*in.AssignedTo)
	}
	acc.UpdatedAt = s.now().UTC()
	if err := s.store.Accounts().Update(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Service) DeleteAccount(ctx context.Context, c Caller, id string) error {
	acc, err := s.GetAccount(ctx, c, id)
	if err != nil {
		return err
	}
	if !policy.Allows(policy.KindAccount, policy.ActionDelete, s.subject(c, &acc.Meta)) {
		return ErrForbidden
	}
	return s.store.Accounts().Delete(ctx, c.DeskID, id)
}

// RecordSale posts a sale against an account: one transaction record plus the
// balance adjustment, applied atomically by the store.
func (s *Service) RecordSale(ctx context.Context, c Caller, accountID string, amount int64, concept string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrInvalidInput)
	}
	acc, err := s.GetAccount(ctx, c, accountID)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(policy.KindAccount, policy.ActionUpdate, s.subject(c, &acc.Meta)) {
		return nil, ErrForbidden
	}
	return s.store.Accounts().RecordSale(ctx, c.DeskID, accountID, amount, strings.TrimSpace(concept), c.ID)
}

func (s *Service) ListTransactions(ctx context.Context, c Caller, accountID string) ([]Transaction, error) {
	if _, err := s.GetAccount(ctx, c, accountID); err != nil {
		return nil, err
	}
	return s.store.Accounts().ListTransactions(ctx, c.DeskID, accountID)
}

// Tasks --------------------------------------------------------------------

// TaskInput carries task fields; nil pointers on update mean "unchanged".
// Status and progress are absent on purpose: they derive from the checklist.
type TaskInput struct {
	Title       *string
	Description *string
	FolderID    *string
	DueDate     *time.Time
	Checklist   *[]ChecklistItem
	AssignedTo  *[]string
}

func (s *Service) ListTasks(ctx context.Context, c Caller) ([]Task, error) {
	return s.store.Tasks().List(ctx, c.scope())
}

func (s *Service) GetTask(ctx context.Context, c Caller, id string) (*Task, error) {
	t, err := s.store.Tasks().Find(ctx, c.DeskID, id)
	if err != nil {
		return nil, err
	}
	if !t.Visible(c.scope()) {
		return nil, ErrNotFound
	}
	return t, nil
}

func (s *Service) CreateTask(ctx context.Context, c Caller, in TaskInput) (*Task, error) {
	if !policy.Allows(policy.KindTask, policy.ActionCreate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	title, err := requiredString(in.Title, "title")
	if err != nil {
		return nil, err
	}
	t := &Task{Meta: s.newMeta(c, deref(in.AssignedTo)), Title: title}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.FolderID != nil {
		t.FolderID = strings.TrimSpace(*in.FolderID)
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		t.DueDate = &due
	}
	if in.Checklist != nil {
		t.Checklist = *in.Checklist
	}
	t.Derive()
	if err := s.store.Tasks().Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdateTask(ctx context.Context, c Caller, id string, in TaskInput) (*Task, error) {
	t, err := s.GetTask(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(policy.KindTask, policy.ActionUpdate, s.subject(c, &t.Meta)) {
		return nil, ErrForbidden
	}
	if in.Title != nil {
		title, err := requiredString(in.Title, "title")
		if err != nil {
			return nil, err
		}
		t.Title = title
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
	}
	if in.FolderID != nil {
		t.FolderID = strings.TrimSpace(*in.FolderID)
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		t.DueDate = &due
	}
	if in.Checklist != nil {
		t.Checklist = *in.Checklist
	}
	if in.AssignedTo != nil {
		if !c.Role.Meets(role.Admin) {
			return nil, ErrForbidden
		}
		t.AssignedTo = dedupe(*in.AssignedTo)
	}
	t.Derive()
	t.UpdatedAt = s.now().UTC()
	if err := s.store.Tasks().Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, c Caller, id string) error {
	t, err := s.GetTask(ctx, c, id)
	if err != nil {
		return err
	}
	if !policy.Allows(policy.KindTask, policy.ActionDelete, s.subject(c, &t.Meta)) {
		return ErrForbidden
	}
	return s.store.Tasks().Delete(ctx, c.DeskID, id)
}

// Inventory ----------------------------------------------------------------

// ItemInput carries inventory item fields.
type ItemInput struct {
	Name       *string
	CategoryID *string
	AssignedTo *[]string
}

func (s *Service) ListItems(ctx context.Context, c Caller) ([]Item, error) {
	return s.store.Items().List(ctx, c.scope())
}

func (s *Service) GetItem(ctx context.Context, c Caller, id string) (*Item, error) {
	it, err := s.store.Items().Find(ctx, c.DeskID, id)
	if err != nil {
		return nil, err
	}
	if !it.Visible(c.scope()) {
		return nil, ErrNotFound
	}
	return it, nil
}

func (s *Service) CreateItem(ctx context.Context, c Caller, in ItemInput) (*Item, error) {
	if !policy.Allows(policy.KindInventory, policy.ActionCreate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	name, err := requiredString(in.Name, "name")
	if err != nil {
		return nil, err
	}
	it := &Item{Meta: s.newMeta(c, deref(in.AssignedTo)), Name: name}
	if in.CategoryID != nil {
		it.CategoryID = strings.TrimSpace(*in.CategoryID)
	}
	if err := s.store.Items().Create(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) UpdateItem(ctx context.Context, c Caller, id string, in ItemInput) (*Item, error) {
	it, err := s.GetItem(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(policy.KindInventory, policy.ActionUpdate, s.subject(c, &it.Meta)) {
		return nil, ErrForbidden
	}
	if in.Name != nil {
		name, err := requiredString(in.Name, "name")
		if err != nil {
			return nil, err
		}
		it.Name = name
	}
	if in.CategoryID != nil {
		it.CategoryID = strings.TrimSpace(*in.CategoryID)
	}
	if in.AssignedTo != nil {
		it.AssignedTo = dedupe(*in.AssignedTo)
	}
	it.UpdatedAt = s.now().UTC()
	if err := s.store.Items().Update(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) DeleteItem(ctx context.Context, c Caller, id string) error {
	it, err := s.GetItem(ctx, c, id)
	if err != nil {
		return err
	}
	if !policy.Allows(policy.KindInventory, policy.ActionDelete, s.subject(c, &it.Meta)) {
		return ErrForbidden
	}
	return s.store.Items().Delete(ctx, c.DeskID, id)
}

// RecordMovement posts a stock movement: one movement record plus the stock
// adjustment, applied atomically by the store. Negative deltas that would
// drive stock below zero fail with ErrInsufficientStock.
func (s *Service) RecordMovement(ctx context.Context, c Caller, itemID string, delta int64, note string) (*Movement, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", ErrInvalidInput)
	}
	it, err := s.GetItem(ctx, c, itemID)
	if err != nil {
		return nil, err
	}
	if !policy.Allows(policy.KindInventory, policy.ActionUpdate, s.subject(c, &it.Meta)) {
		return nil, ErrForbidden
	}
	return s.store.Items().RecordMovement(ctx, c.DeskID, itemID, delta, strings.TrimSpace(note), c.ID)
}

func (s *Service) ListMovements(ctx context.Context, c Caller, itemID string) ([]Movement, error) {
	if _, err := s.GetItem(ctx, c, itemID); err != nil {
		return nil, err
	}
	return s.store.Items().ListMovements(ctx, c.DeskID, itemID)
}

// Events -------------------------------------------------------------------

// EventInput carries calendar event fields.
type EventInput struct {
	Title      *string
	Start      *time.Time
	End        *time.Time
	AssignedTo *[]string
}

func (s *Service) ListEvents(ctx context.Context, c Caller) ([]Event, error) {
	return s.store.Events().List(ctx, c.scope())
}

func (s *Service) CreateEvent(ctx context.Context, c Caller, in EventInput) (*Event, error) {
	if !policy.Allows(policy.KindEvent, policy.ActionCreate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	title, err := requiredString(in.Title, "title")
	if err != nil {
		return nil, err
	}
	if in.Start == nil || in.End == nil {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidInput)
	}
	if !in.End.After(*in.Start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	ev := &Event{
		Meta:  s.newMeta(c, deref(in.AssignedTo)),
		Title: title,
		Start: in.Start.UTC(),
		End:   in.End.UTC(),
	}
	if err := s.store.Events().Create(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Service) UpdateEvent(ctx context.Context, c Caller, id string, in EventInput) (*Event, error) {
	ev, err := s.store.Events().Find(ctx, c.DeskID, id)
	if err != nil {
		return nil, err
	}
	if !ev.Visible(c.scope()) {
		return nil, ErrNotFound
	}
	if !policy.Allows(policy.KindEvent, policy.ActionUpdate, s.subject(c, &ev.Meta)) {
		return nil, ErrForbidden
	}
	if in.Title != nil {
		title, err := requiredString(in.Title, "title")
		if err != nil {
			return nil, err
		}
		ev.Title = title
	}
	if in.Start != nil {
		ev.Start = in.Start.UTC()
	}
	if in.End != nil {
		ev.End = in.End.UTC()
	}
	if !ev.End.After(ev.Start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidInput)
	}
	if in.AssignedTo != nil {
		ev.AssignedTo = dedupe(*in.AssignedTo)
	}
	ev.UpdatedAt = s.now().UTC()
	if err := s.store.Events().Update(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Service) DeleteEvent(ctx context.Context, c Caller, id string) error {
	ev, err := s.store.Events().Find(ctx, c.DeskID, id)
	if err != nil {
		return err
	}
	if !ev.Visible(c.scope()) {
		return ErrNotFound
	}
	if !policy.Allows(policy.KindEvent, policy.ActionDelete, s.subject(c, &ev.Meta)) {
		return ErrForbidden
	}
	return s.store.Events().Delete(ctx, c.DeskID, id)
}

// Reports ------------------------------------------------------------------

// ReportInput carries report fields.
type ReportInput struct {
	Title   *string
	Content *string
}

func (s *Service) ListReports(ctx context.Context, c Caller) ([]Report, error) {
	return s.store.Reports().List(ctx, c.scope())
}

func (s *Service) CreateReport(ctx context.Context, c Caller, in ReportInput) (*Report, error) {
	if !policy.Allows(policy.KindReport, policy.ActionCreate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	title, err := requiredString(in.Title, "title")
	if err != nil {
		return nil, err
	}
	rep := &Report{Meta: s.newMeta(c, nil), Title: title}
	if in.Content != nil {
		rep.Content = *in.Content
	}
	if err := s.store.Reports().Create(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *Service) UpdateReport(ctx context.Context, c Caller, id string, in ReportInput) (*Report, error) {
	rep, err := s.store.Reports().Find(ctx, c.DeskID, id)
	if err != nil {
		return nil, err
	}
	if !rep.VisibleByCreator(c.scope()) {
		return nil, ErrNotFound
	}
	if !policy.Allows(policy.KindReport, policy.ActionUpdate, s.subject(c, &rep.Meta)) {
		return nil, ErrForbidden
	}
	if in.Title != nil {
		title, err := requiredString(in.Title, "title")
		if err != nil {
			return nil, err
		}
		rep.Title = title
	}
	if in.Content != nil {
		rep.Content = *in.Content
	}
	rep.UpdatedAt = s.now().UTC()
	if err := s.store.Reports().Update(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *Service) DeleteReport(ctx context.Context, c Caller, id string) error {
	rep, err := s.store.Reports().Find(ctx, c.DeskID, id)
	if err != nil {
		return err
	}
	if !rep.VisibleByCreator(c.scope()) {
		return ErrNotFound
	}
	if !policy.Allows(policy.KindReport, policy.ActionDelete, s.subject(c, &rep.Meta)) {
		return ErrForbidden
	}
	return s.store.Reports().Delete(ctx, c.DeskID, id)
}

// Categories and folders ---------------------------------------------------

func (s *Service) ListCategories(ctx context.Context, c Caller) ([]Category, error) {
	return s.store.Categories().List(ctx, c.DeskID)
}

func (s *Service) CreateCategory(ctx context.Context, c Caller, name string) (*Category, error) {
	if !policy.Allows(policy.KindCategory, policy.ActionCreate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	cat := &Category{
		ID:        ids.New(),
		DeskID:    c.DeskID,
		Name:      name,
		CreatedBy: c.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Categories().Create(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *Service) UpdateCategory(ctx context.Context, c Caller, id, name string) (*Category, error) {
	if !policy.Allows(policy.KindCategory, policy.ActionUpdate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	cat, err := s.store.Categories().Find(ctx, c.DeskID, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	cat.Name = name
	if err := s.store.Categories().Update(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *Service) DeleteCategory(ctx context.Context, c Caller, id string) error {
	if !policy.Allows(policy.KindCategory, policy.ActionDelete, policy.Subject{Role: c.Role}) {
		return ErrForbidden
	}
	return s.store.Categories().Delete(ctx, c.DeskID, id)
}

func (s *Service) ListFolders(ctx context.Context, c Caller) ([]Folder, error) {
	return s.store.Folders().List(ctx, c.DeskID)
}

func (s *Service) CreateFolder(ctx context.Context, c Caller, name string) (*Folder, error) {
	if !policy.Allows(policy.KindFolder, policy.ActionCreate, policy.Subject{Role: c.Role}) {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	f := &Folder{
		ID:        ids.New(),
		DeskID:    c.DeskID,
		Name:      name,
		CreatedBy: c.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Folders().Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) DeleteFolder(ctx context.Context, c Caller, id string) error {
	if !policy.Allows(policy.KindFolder, policy.ActionDelete, policy.Subject{Role: c.Role}) {
		return ErrForbidden
	}
	return s.store.Folders().Delete(ctx, c.DeskID, id)
}

// helpers ------------------------------------------------------------------

func requiredString(v *string, field string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	return trimmed, nil
}

func deref(v *[]string) []string {
	if v == nil {
		return nil
	}
	return *v
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
