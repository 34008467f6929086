package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type cartEntry struct {
	lines     []domain.CartLine
	expiresAt time.Time
}

// CartStore хранит корзины по ID сессии. Просроченные корзины удаляются лениво
// при обращении и пачкой через DeleteExpired.
type CartStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	carts map[string]cartEntry
	now   func() time.Time
}

// NewCartStore создаёт хранилище корзин; ttl <= 0 отключает истечение.
func NewCartStore(ttl time.Duration) *CartStore {
	return &CartStore{
		ttl:   ttl,
		carts: make(map[string]cartEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *CartStore) Load(_ context.Context, sessionID string) ([]domain.CartLine, error) {
	sessionID = strings.TrimSpace(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.carts[sessionID]
	if !ok {
		return []domain.CartLine{}, nil
	}
	if s.expired(entry) {
		delete(s.carts, sessionID)
		return []domain.CartLine{}, nil
	}
	return domain.CloneCartLines(entry.lines), nil
}

func (s *CartStore) Save(_ context.Context, sessionID string, lines []domain.CartLine) error {
	sessionID = strings.TrimSpace(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(lines) == 0 {
		delete(s.carts, sessionID)
		return nil
	}

	entry := cartEntry{lines: domain.CloneCartLines(lines)}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.carts[sessionID] = entry
	return nil
}

func (s *CartStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, strings.TrimSpace(sessionID))
	return nil
}

// DeleteExpired удаляет корзины, истёкшие к моменту before, и возвращает их количество.
func (s *CartStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.carts {
		if !entry.expiresAt.IsZero() && !before.Before(entry.expiresAt) {
			delete(s.carts, id)
			removed++
		}
	}
	return removed, nil
}

func (s *CartStore) expired(entry cartEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}

var _ domain.CartStore = (*CartStore)(nil)
