package domain

import (
	"context"
	"time"
)

// CartStore хранит корзины по ключу сессии. Корзина живёт не дольше сессии.
type CartStore interface {
	// Load возвращает строки корзины; для неизвестной сессии — пустой срез.
	Load(ctx context.Context, sessionID string) ([]CartLine, error)
	Save(ctx context.Context, sessionID string, lines []CartLine) error
	Delete(ctx context.Context, sessionID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// HistoryRepository хранит события жизненного цикла заказа.
type HistoryRepository interface {
	Append(ctx context.Context, event HistoryEvent) error
	List(ctx context.Context, orderID string) ([]HistoryEvent, error)
}

// IdempotencyRepository хранит ключи идемпотентности. Ключ уникален в пределах владельца.
type IdempotencyRepository interface {
	// Reserve занимает ключ. Живая запись с тем же ключом возвращается вместе с
	// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	Reserve(ctx context.Context, claim IdempotencyClaim) (IdempotencyRecord, error)
	Get(ctx context.Context, owner, key string) (IdempotencyRecord, error)
	// Complete сохраняет ответ; статус записи выводится из кода ответа.
	Complete(ctx context.Context, owner, key string, reply IdempotencyReply) error
	// Release удаляет запись, пока она в processing, чтобы повтор выполнил запрос заново.
	Release(ctx context.Context, owner, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Типы событий outbox.
const (
	AggregateTypeOrder         = "order"
	EventTypeOrderPlaced       = "OrderPlaced"
	EventTypeOrderStatusChange = "OrderStatusChanged"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
