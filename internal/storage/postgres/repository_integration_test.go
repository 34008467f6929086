package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type integrationFixture struct {
	books     domain.BookRepository
	customers domain.CustomerRepository
	employees domain.EmployeeRepository
	orders    domain.OrderRepository
	checkout  domain.CheckoutStore
	history   domain.HistoryRepository
}

func newIntegrationFixture(t *testing.T) (*Store, integrationFixture) {
	t.Helper()

	store := openPostgresStoreForIntegrationTest(t)
	return store, integrationFixture{
		books:     NewBookRepository(store),
		customers: NewCustomerRepository(store),
		employees: NewEmployeeRepository(store),
		orders:    NewOrderRepository(store),
		checkout:  NewCheckoutStore(store),
		history:   NewHistoryRepository(store),
	}
}

func placedOrder(id string, customer domain.Customer, book domain.Book, qty int, at time.Time) domain.Order {
	line := domain.OrderLine{BookID: book.ID, BookName: book.Name, Quantity: qty, UnitPrice: book.Price}
	return domain.Order{
		ID:            id,
		CustomerID:    customer.ID,
		CustomerEmail: customer.Email,
		PlacedAt:      at,
		UpdatedAt:     at,
		Status:        domain.OrderStatusNew,
		TotalPrice:    line.LineTotal(),
		Lines:         []domain.OrderLine{line},
	}
}

func TestCheckoutStore_PostgresConcurrentLastUnit(t *testing.T) {
	_, fx := newIntegrationFixture(t)
	ctx := context.Background()

	book, err := fx.books.Save(ctx, domain.Book{Name: "Rare", Price: decimal.RequireFromString("100.00"), Quantity: 1})
	if err != nil {
		t.Fatalf("save book: %v", err)
	}

	const buyers = 6
	customers := make([]domain.Customer, buyers)
	for i := range customers {
		customers[i], err = fx.customers.Save(ctx, domain.Customer{
			Email:   fmt.Sprintf("buyer-%d@example.com", i),
			Balance: decimal.RequireFromString("500.00"),
		})
		if err != nil {
			t.Fatalf("save customer: %v", err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		stockErrs int
	)
	now := time.Now().UTC()
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := placedOrder(fmt.Sprintf("race-%d", i), customers[i], book, 1, now)
			err := fx.checkout.CommitCheckout(ctx, domain.CheckoutCommit{Order: order, CustomerID: customers[i].ID, Debit: order.TotalPrice})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.IsInsufficientStock(err):
				stockErrs++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 || stockErrs != buyers-1 {
		t.Fatalf("expected exactly one winner, got succeeded=%d stock errors=%d", succeeded, stockErrs)
	}

	stored, err := fx.books.Get(ctx, book.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if stored.Quantity != 0 {
		t.Fatalf("expected stock 0, got %d", stored.Quantity)
	}

	page, err := fx.orders.List(ctx, domain.PageRequest{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if page.TotalItems != 1 {
		t.Fatalf("expected one stored order, got %d", page.TotalItems)
	}
}

func TestCheckoutStore_PostgresInsufficientFundsLeavesNoTrace(t *testing.T) {
	_, fx := newIntegrationFixture(t)
	ctx := context.Background()

	book, err := fx.books.Save(ctx, domain.Book{Name: "X", Price: decimal.RequireFromString("200.00"), Quantity: 10})
	if err != nil {
		t.Fatalf("save book: %v", err)
	}
	customer, err := fx.customers.Save(ctx, domain.Customer{Email: "poor@example.com", Balance: decimal.RequireFromString("100.00")})
	if err != nil {
		t.Fatalf("save customer: %v", err)
	}

	order := placedOrder("poor-1", customer, book, 2, time.Now().UTC())
	err = fx.checkout.CommitCheckout(ctx, domain.CheckoutCommit{Order: order, CustomerID: customer.ID, Debit: order.TotalPrice})

	var fundsErr *domain.InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if fundsErr.Balance.StringFixed(2) != "100.00" || fundsErr.Total.StringFixed(2) != "400.00" {
		t.Fatalf("unexpected funds error: %v", fundsErr)
	}

	stored, _ := fx.books.Get(ctx, book.ID)
	if stored.Quantity != 10 {
		t.Fatalf("stock must be untouched, got %d", stored.Quantity)
	}
	reloaded, _ := fx.customers.GetByEmail(ctx, customer.Email)
	if !reloaded.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("balance must be untouched, got %s", reloaded.Balance)
	}
	if _, err := fx.orders.Get(ctx, "poor-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("order must not be stored, got %v", err)
	}
}

func TestOrderRepository_PostgresFlow(t *testing.T) {
	_, fx := newIntegrationFixture(t)
	ctx := context.Background()

	book, _ := fx.books.Save(ctx, domain.Book{Name: "Dune", Price: decimal.RequireFromString("30.00"), Quantity: 5})
	customer, _ := fx.customers.Save(ctx, domain.Customer{Email: "reader@example.com", Balance: decimal.RequireFromString("100")})
	employee, err := fx.employees.Save(ctx, domain.Employee{Email: "clerk@example.com", Name: "Clerk"})
	if err != nil {
		t.Fatalf("save employee: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := placedOrder("order-1", customer, book, 1, base)
	second := placedOrder("order-2", customer, book, 2, base.Add(time.Hour))
	second.EmployeeID, second.EmployeeEmail = employee.ID, employee.Email

	for _, order := range []domain.Order{first, second} {
		if err := fx.orders.Create(ctx, order); err != nil {
			t.Fatalf("create %s: %v", order.ID, err)
		}
	}
	if err := fx.orders.Create(ctx, first); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}

	byCustomer, err := fx.orders.ListByCustomer(ctx, customer.Email, domain.PageRequest{})
	if err != nil {
		t.Fatalf("list by customer: %v", err)
	}
	if len(byCustomer.Items) != 2 || byCustomer.Items[0].ID != "order-2" {
		t.Fatalf("expected newest first, got %+v", byCustomer.Items)
	}

	byEmployee, err := fx.orders.ListByEmployee(ctx, employee.Email, domain.PageRequest{})
	if err != nil {
		t.Fatalf("list by employee: %v", err)
	}
	if byEmployee.TotalItems != 1 || byEmployee.Items[0].EmployeeID != employee.ID {
		t.Fatalf("unexpected employee orders: %+v", byEmployee)
	}

	updated, err := fx.orders.UpdateStatus(ctx, "order-1", domain.OrderStatusConfirmed, domain.OrderStatusNew)
	if err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed || len(updated.Lines) != 1 {
		t.Fatalf("unexpected updated order: %+v", updated)
	}
	if _, err := fx.orders.UpdateStatus(ctx, "order-1", domain.OrderStatusCanceled, domain.OrderStatusNew); !errors.Is(err, domain.ErrOrderStatusConflict) {
		t.Fatalf("expected ErrOrderStatusConflict, got %v", err)
	}
	if _, err := fx.orders.UpdateStatus(ctx, "order-1", domain.OrderStatusNew, ""); err != nil {
		t.Fatalf("unconditional update: %v", err)
	}

	byStatus, err := fx.orders.ListByStatus(ctx, domain.OrderStatusNew, domain.PageRequest{})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if byStatus.TotalItems != 2 {
		t.Fatalf("expected 2 NEW orders, got %d", byStatus.TotalItems)
	}

	if err := fx.history.Append(ctx, domain.HistoryEvent{OrderID: "order-1", Type: domain.HistoryEventPlaced, Occurred: base}); err != nil {
		t.Fatalf("append history: %v", err)
	}
	if err := fx.history.Append(ctx, domain.HistoryEvent{OrderID: "order-1", Type: domain.HistoryEventStatusChanged, Reason: "NEW -> CONFIRMED", Actor: employee.Email, Occurred: base.Add(time.Minute)}); err != nil {
		t.Fatalf("append history: %v", err)
	}
	events, err := fx.history.List(ctx, "order-1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(events) != 2 || events[1].Reason != "NEW -> CONFIRMED" {
		t.Fatalf("unexpected history: %+v", events)
	}
}

func TestOutboxAndIdempotency_PostgresFlow(t *testing.T) {
	store, _ := newIntegrationFixture(t)
	ctx := context.Background()

	outbox := NewOutboxRepository(store)
	stored, err := outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pending, err := outbox.PullPending(ctx, 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pull pending: %v (%d)", err, len(pending))
	}
	if err := outbox.MarkSent(ctx, stored.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := outbox.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for unknown id, got %v", err)
	}
	stats, err := outbox.Stats(ctx)
	if err != nil || stats.PendingCount != 0 {
		t.Fatalf("unexpected stats: %+v err=%v", stats, err)
	}

	keys := NewIdempotencyRepository(store)
	now := time.Now().UTC()
	claim := domain.IdempotencyClaim{Owner: "reader@example.com", Key: "key-1", RequestHash: "hash-1", ExpiresAt: now.Add(time.Hour)}
	if _, err := keys.Reserve(ctx, claim); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	mismatch := claim
	mismatch.RequestHash = "hash-2"
	if _, err := keys.Reserve(ctx, mismatch); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
	other := mismatch
	other.Owner = "other@example.com"
	if _, err := keys.Reserve(ctx, other); err != nil {
		t.Fatalf("same key for another owner: %v", err)
	}
	if err := keys.Complete(ctx, claim.Owner, claim.Key, domain.IdempotencyReply{HTTPStatus: 201, Body: []byte(`{"ok":true}`)}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	record, err := keys.Get(ctx, claim.Owner, claim.Key)
	if err != nil || record.Status != domain.IdempotencyStatusDone || record.Reply.HTTPStatus != 201 {
		t.Fatalf("unexpected record: %+v err=%v", record, err)
	}

	// Просроченный ключ можно занять заново.
	expired := domain.IdempotencyClaim{Owner: "reader@example.com", Key: "key-2", RequestHash: "hash", ExpiresAt: now.Add(-time.Minute)}
	if _, err := keys.Reserve(ctx, expired); err != nil {
		t.Fatalf("reserve expired: %v", err)
	}
	expired.RequestHash = "other"
	expired.ExpiresAt = now.Add(time.Hour)
	if _, err := keys.Reserve(ctx, expired); err != nil {
		t.Fatalf("reuse expired key: %v", err)
	}
	deleted, err := keys.DeleteExpired(ctx, now.Add(2*time.Hour), 10)
	if err != nil || deleted != 3 {
		t.Fatalf("delete expired: deleted=%d err=%v", deleted, err)
	}

	carts := NewCartStore(store, time.Hour)
	if err := carts.Save(ctx, "s1", []domain.CartLine{{BookID: 1, BookName: "Dune", UnitPrice: decimal.RequireFromString("30"), Quantity: 1}}); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	lines, err := carts.Load(ctx, "s1")
	if err != nil || len(lines) != 1 {
		t.Fatalf("load cart: %+v err=%v", lines, err)
	}
	removed, err := carts.DeleteExpired(ctx, now.Add(2*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("delete expired carts: removed=%d err=%v", removed, err)
	}
}
