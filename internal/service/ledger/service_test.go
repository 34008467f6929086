package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

func seedOrders(t *testing.T, repo domain.OrderRepository) {
	t.Helper()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	line := domain.OrderLine{BookID: 1, BookName: "Dune", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}
	orders := []domain.Order{
		{ID: "o1", CustomerEmail: "anna@example.com", Status: domain.OrderStatusNew, PlacedAt: base},
		{ID: "o2", CustomerEmail: "anna@example.com", Status: domain.OrderStatusCompleted, PlacedAt: base.Add(time.Hour)},
		{ID: "o3", CustomerEmail: "boris@example.com", Status: domain.OrderStatusCompleted, PlacedAt: base.Add(2 * time.Hour),
			EmployeeID: 7, EmployeeEmail: "clerk@example.com"},
	}
	for _, order := range orders {
		order.Lines = []domain.OrderLine{line}
		order.TotalPrice = order.LinesTotal()
		if err := repo.Create(context.Background(), order); err != nil {
			t.Fatalf("seed order %s: %v", order.ID, err)
		}
	}
}

func ids(page domain.OrderPage) []string {
	out := make([]string, 0, len(page.Items))
	for _, order := range page.Items {
		out = append(out, order.ID)
	}
	return out
}

func TestAllOrders_FilterPrecedence(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	seedOrders(t, repo)
	svc := NewService(repo)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "no filter", filter: Filter{}, want: []string{"o3", "o2", "o1"}},
		{name: "status only", filter: Filter{Status: "completed"}, want: []string{"o3", "o2"}},
		{name: "customer only", filter: Filter{CustomerEmail: "anna@example.com"}, want: []string{"o2", "o1"}},
		{
			name:   "customer wins over status",
			filter: Filter{CustomerEmail: "anna@example.com", Status: "NEW"},
			want:   []string{"o2", "o1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.AllOrders(context.Background(), tt.filter, domain.PageRequest{})
			if err != nil {
				t.Fatalf("AllOrders: %v", err)
			}
			got := ids(page)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}

	if _, err := svc.AllOrders(context.Background(), Filter{Status: "shipped"}, domain.PageRequest{}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestOrdersByCustomerAndEmployee(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	seedOrders(t, repo)
	svc := NewService(repo)
	ctx := context.Background()

	mine, err := svc.OrdersByCustomer(ctx, "boris@example.com", domain.PageRequest{})
	if err != nil {
		t.Fatalf("OrdersByCustomer: %v", err)
	}
	if mine.TotalItems != 1 || mine.Items[0].ID != "o3" {
		t.Fatalf("unexpected orders %v", ids(mine))
	}

	managed, err := svc.OrdersByEmployee(ctx, "clerk@example.com", domain.PageRequest{})
	if err != nil {
		t.Fatalf("OrdersByEmployee: %v", err)
	}
	if managed.TotalItems != 1 {
		t.Fatalf("unexpected managed orders %v", ids(managed))
	}

	paged, err := svc.OrdersByCustomer(ctx, "anna@example.com", domain.PageRequest{Page: 1, Size: 1})
	if err != nil {
		t.Fatalf("OrdersByCustomer paged: %v", err)
	}
	if paged.TotalPages != 2 || len(paged.Items) != 1 || paged.Items[0].ID != "o1" {
		t.Fatalf("unexpected page %+v", paged)
	}
}

func TestUpdateStatus_Unconditional(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	seedOrders(t, repo)
	history := memory.NewHistoryRepository()
	outbox := memory.NewOutboxRepository()
	svc := NewService(repo, WithHistory(history), WithOutbox(outbox))
	ctx := context.Background()

	updated, err := svc.UpdateStatus(ctx, "o2", domain.OrderStatusNew, "clerk@example.com")
	if err != nil {
		t.Fatalf("COMPLETED -> NEW must be accepted by default: %v", err)
	}
	if updated.Status != domain.OrderStatusNew {
		t.Fatalf("unexpected status %s", updated.Status)
	}

	events, err := svc.History(ctx, "o2")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.HistoryEventStatusChanged || events[0].Actor != "clerk@example.com" {
		t.Fatalf("unexpected history %+v", events)
	}
	if pending := outbox.AllPending(); len(pending) != 1 || pending[0].EventType != domain.EventTypeOrderStatusChange {
		t.Fatalf("unexpected outbox %+v", pending)
	}

	if _, err := svc.UpdateStatus(ctx, "missing", domain.OrderStatusNew, ""); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "o1", domain.OrderStatus("SHIPPED"), ""); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestUpdateStatus_Guarded(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	seedOrders(t, repo)
	svc := NewService(repo, WithGuardedTransitions())
	ctx := context.Background()

	if _, err := svc.UpdateStatus(ctx, "o2", domain.OrderStatusNew, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "o1", domain.OrderStatusCompleted, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("NEW -> COMPLETED must be rejected, got %v", err)
	}

	steps := []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusCompleted}
	for _, status := range steps {
		if _, err := svc.UpdateStatus(ctx, "o1", status, ""); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
}

func TestUpdateStatus_GuardedConcurrentTransitions(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewStore())
	seedOrders(t, repo)
	svc := NewService(repo, WithGuardedTransitions())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, status := range []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusCanceled} {
		wg.Add(1)
		go func(status domain.OrderStatus) {
			defer wg.Done()
			_, err := svc.UpdateStatus(context.Background(), "o1", status, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, domain.ErrOrderStatusConflict), errors.Is(err, domain.ErrInvalidTransition):
			default:
				t.Errorf("unexpected error %v", err)
			}
		}(status)
	}
	wg.Wait()

	if success < 1 {
		t.Fatal("at least one transition must win")
	}
}
