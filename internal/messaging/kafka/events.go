package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "bookstore.order.events"
	TopicDeadLetterQueue = "bookstore.dlq"
)

// Kafka headers, по которым подписчики фильтруют события без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderReplayedFrom  = "x-replayed-from"
)

// OutboxEnvelope — формат сообщения, которое outbox публикует в Kafka.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DecodeEnvelope разбирает сообщение outbox и проверяет обязательные поля.
func DecodeEnvelope(value []byte) (OutboxEnvelope, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return OutboxEnvelope{}, fmt.Errorf("decode outbox envelope: %w", err)
	}
	if envelope.EventType == "" || len(envelope.Payload) == 0 {
		return OutboxEnvelope{}, fmt.Errorf("outbox envelope is missing event_type or payload")
	}
	return envelope, nil
}

// Key возвращает ключ партиционирования: все события одного заказа идут в одну партицию.
func (e OutboxEnvelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}
