package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// DLQEnvelope — тело сообщения в DLQ-топике. Исходное событие лежит в Payload без изменений,
// чтобы dlq-reprocess мог восстановить его байт в байт.
type DLQEnvelope struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	Attempts       int             `json:"attempts"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// newDLQMessage заворачивает событие в DLQEnvelope. Невалидный JSON сохраняется строкой.
func newDLQMessage(event domain.OutboxMessage, cause error, attempts int, at time.Time) (domain.OutboxMessage, error) {
	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(event.Payload))
		if err != nil {
			return domain.OutboxMessage{}, fmt.Errorf("quote dlq payload: %w", err)
		}
		payload = quoted
	}

	body, err := json.Marshal(DLQEnvelope{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        payload,
		PublishError:   cause.Error(),
		Attempts:       attempts,
		DLQPublishedAt: at.UTC(),
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dlq envelope: %w", err)
	}

	msg := event
	msg.Payload = body
	return msg, nil
}
