package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository поверх общего Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Create сохраняет новый заказ, если ID ещё не занят. Остатки и балансы не трогает.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.orders[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	r.store.orders[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, email string, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(page, func(o domain.Order) bool { return o.CustomerEmail == email }), nil
}

func (r *orderRepositoryInMemory) ListByEmployee(_ context.Context, email string, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(page, func(o domain.Order) bool { return o.EmployeeID != 0 && o.EmployeeEmail == email }), nil
}

func (r *orderRepositoryInMemory) ListByStatus(_ context.Context, status domain.OrderStatus, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(page, func(o domain.Order) bool { return o.Status == status }), nil
}

func (r *orderRepositoryInMemory) List(_ context.Context, page domain.PageRequest) (domain.OrderPage, error) {
	return r.list(page, func(domain.Order) bool { return true }), nil
}

// UpdateStatus меняет статус; при непустом expected работает как compare-and-swap.
func (r *orderRepositoryInMemory) UpdateStatus(_ context.Context, id string, status, expected domain.OrderStatus) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if expected != "" && order.Status != expected {
		return domain.Order{}, domain.ErrOrderStatusConflict
	}

	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	r.store.orders[id] = order
	return cloneOrder(order), nil
}

func (r *orderRepositoryInMemory) list(page domain.PageRequest, match func(domain.Order) bool) domain.OrderPage {
	r.store.mu.RLock()
	result := make([]domain.Order, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		if match(order) {
			result = append(result, order)
		}
	}
	r.store.mu.RUnlock()

	return pageOrders(result, page)
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
