package resource_test

import (
	"context"
	"errors"
	"testing"

	"deskhub.org/internal/resource"
	"deskhub.org/internal/role"
	"deskhub.org/internal/store/mem"
)

func ptr[T any](v T) *T { return &v }

func adminCaller() resource.Caller {
	return resource.Caller{ID: "admin-1", Role: role.Admin, DeskID: "desk-1"}
}

func TestAccountLifecycle(t *testing.T) {
	svc := resource.NewService(mem.New())
	ctx := context.Background()
	admin := adminCaller()

	acc, err := svc.CreateAccount(ctx, admin, resource.AccountInput{
		Name:       ptr("Caja principal"),
		AssignedTo: ptr([]string{"user-1"}),
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if acc.DeskID != "desk-1" || acc.CreatedBy != "admin-1" {
		t.Fatalf("unexpected meta: %+v", acc.Meta)
	}

	// The assigned user may edit but not reassign.
	assigned := resource.Caller{ID: "user-1", Role: role.User, DeskID: "desk-1"}
	if _, err := svc.UpdateAccount(ctx, assigned, acc.ID, resource.AccountInput{Name: ptr("Caja")}); err != nil {
		t.Fatalf("assigned user update failed: %v", err)
	}
	_, err = svc.UpdateAccount(ctx, assigned, acc.ID, resource.AccountInput{AssignedTo: ptr([]string{"user-2"})})
	if !errors.Is(err, resource.ErrForbidden) {
		t.Fatalf("reassignment by non-admin should be forbidden, got %v", err)
	}

	// An unassigned user cannot even see it.
	stranger := resource.Caller{ID: "user-9", Role: role.User, DeskID: "desk-1"}
	if _, err := svc.GetAccount(ctx, stranger, acc.ID); !errors.Is(err, resource.ErrNotFound) {
		t.Fatalf("unassigned user should get not-found, got %v", err)
	}

	// Deleting needs owner.
	if err := svc.DeleteAccount(ctx, admin, acc.ID); !errors.Is(err, resource.ErrForbidden) {
		t.Fatalf("admin delete should be forbidden, got %v", err)
	}
	owner := resource.Caller{ID: "owner-1", Role: role.Owner, DeskID: "desk-1"}
	if err := svc.DeleteAccount(ctx, owner, acc.ID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
}

func TestRecordSaleAdjustsBalance(t *testing.T) {
	svc := resource.NewService(mem.New())
	ctx := context.Background()
	admin := adminCaller()

	acc, err := svc.CreateAccount(ctx, admin, resource.AccountInput{Name: ptr("Ventas")})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if _, err := svc.RecordSale(ctx, admin, acc.ID, 0, "x"); !errors.Is(err, resource.ErrInvalidInput) {
		t.Fatalf("zero amount should be invalid, got %v", err)
	}

	rec, err := svc.RecordSale(ctx, admin, acc.ID, 1500, "venta mostrador")
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	if rec.Amount != 1500 || rec.AccountID != acc.ID {
		t.Fatalf("unexpected transaction: %+v", rec)
	}

	got, err := svc.GetAccount(ctx, admin, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.Balance != 1500 {
		t.Fatalf("balance = %d, want 1500", got.Balance)
	}

	txs, err := svc.ListTransactions(ctx, admin, acc.ID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
}

func TestTaskStatusDerivedOnWrite(t *testing.T) {
	svc := resource.NewService(mem.New())
	ctx := context.Background()
	admin := adminCaller()

	task, err := svc.CreateTask(ctx, admin, resource.TaskInput{
		Title: ptr("Inventario semanal"),
		Checklist: ptr([]resource.ChecklistItem{
			{Text: "contar stock"},
			{Text: "registrar mermas"},
		}),
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Status != resource.StatusPending || task.Progress != 0 {
		t.Fatalf("new task should be pending, got %s/%v", task.Status, task.Progress)
	}

	task, err = svc.UpdateTask(ctx, admin, task.ID, resource.TaskInput{
		Checklist: ptr([]resource.ChecklistItem{
			{Text: "contar stock", Completed: true},
			{Text: "registrar mermas"},
		}),
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if task.Status != resource.StatusInProgress || task.Progress != 50 {
		t.Fatalf("half-done task should be in progress at 50, got %s/%v", task.Status, task.Progress)
	}

	task, err = svc.UpdateTask(ctx, admin, task.ID, resource.TaskInput{
		Checklist: ptr([]resource.ChecklistItem{
			{Text: "contar stock", Completed: true},
			{Text: "registrar mermas", Completed: true},
		}),
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if task.Status != resource.StatusDone || task.Progress != 100 {
		t.Fatalf("finished task should be done at 100, got %s/%v", task.Status, task.Progress)
	}
}

func TestMovementStockFloor(t *testing.T) {
	svc := resource.NewService(mem.New())
	ctx := context.Background()
	admin := adminCaller()

	item, err := svc.CreateItem(ctx, admin, resource.ItemInput{Name: ptr("Cafetera")})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	if _, err := svc.RecordMovement(ctx, admin, item.ID, 5, "alta inicial"); err != nil {
		t.Fatalf("RecordMovement failed: %v", err)
	}
	if _, err := svc.RecordMovement(ctx, admin, item.ID, -6, "venta"); !errors.Is(err, resource.ErrInsufficientStock) {
		t.Fatalf("underflow should be rejected, got %v", err)
	}
	if _, err := svc.RecordMovement(ctx, admin, item.ID, -5, "venta"); err != nil {
		t.Fatalf("draining to zero should work: %v", err)
	}

	got, _ := svc.GetItem(ctx, admin, item.ID)
	if got.Stock != 0 {
		t.Fatalf("stock = %d, want 0", got.Stock)
	}

	movs, err := svc.ListMovements(ctx, admin, item.ID)
	if err != nil {
		t.Fatalf("ListMovements failed: %v", err)
	}
	if len(movs) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movs))
	}
}

func TestReportVisibilityByCreator(t *testing.T) {
	svc := resource.NewService(mem.New())
	ctx := context.Background()
	author := resource.Caller{ID: "user-1", Role: role.User, DeskID: "desk-1"}
	other := resource.Caller{ID: "user-2", Role: role.User, DeskID: "desk-1"}
	admin := adminCaller()

	if _, err := svc.CreateReport(ctx, author, resource.ReportInput{Title: ptr("Cierre de caja")}); err != nil {
		t.Fatalf("CreateReport failed: %v", err)
	}

	mine, err := svc.ListReports(ctx, author)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("author should see own report, got %d", len(mine))
	}

	theirs, err := svc.ListReports(ctx, other)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("non-author user should see nothing, got %d", len(theirs))
	}

	all, err := svc.ListReports(ctx, admin)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("admin should see all reports, got %d", len(all))
	}
}

func TestListingScopedByAssignment(t *testing.T) {
	svc := resource.NewService(mem.New())
	ctx := context.Background()
	admin := adminCaller()

	if _, err := svc.CreateTask(ctx, admin, resource.TaskInput{
		Title: ptr("asignada"), AssignedTo: ptr([]string{"user-1"}),
	}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if _, err := svc.CreateTask(ctx, admin, resource.TaskInput{Title: ptr("libre")}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	assigned := resource.Caller{ID: "user-1", Role: role.User, DeskID: "desk-1"}
	visible, err := svc.ListTasks(ctx, assigned)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(visible) != 1 || visible[0].Title != "asignada" {
		t.Fatalf("user should see only assigned tasks, got %d", len(visible))
	}

	all, err := svc.ListTasks(ctx, admin)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("admin should see all tasks, got %d", len(all))
	}
}
