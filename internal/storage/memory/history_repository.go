package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// historyRepositoryInMemory хранит события в памяти (для разработки/тестов).
type historyRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.HistoryEvent
}

// NewHistoryRepository создаёт in-memory реализацию HistoryRepository.
func NewHistoryRepository() domain.HistoryRepository {
	return &historyRepositoryInMemory{events: make(map[string][]domain.HistoryEvent)}
}

// Append добавляет событие в хранилище.
func (r *historyRepositoryInMemory) Append(_ context.Context, event domain.HistoryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := append(r.events[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.events[event.OrderID] = events

	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *historyRepositoryInMemory) List(_ context.Context, orderID string) ([]domain.HistoryEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[orderID]
	result := make([]domain.HistoryEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.HistoryRepository = (*historyRepositoryInMemory)(nil)
