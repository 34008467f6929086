package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const maxRetryDelay = 30 * time.Second

// retryPolicy — число попыток публикации и экспоненциальная пауза между ними.
type retryPolicy struct {
	attempts int
	base     time.Duration
}

// delay возвращает паузу перед попыткой attempt+1: base, 2*base, 4*base... не больше maxRetryDelay.
func (p retryPolicy) delay(attempt int) time.Duration {
	if p.base <= 0 {
		return 0
	}
	d := p.base
	for i := 1; i < attempt; i++ {
		if d >= maxRetryDelay/2 {
			return maxRetryDelay
		}
		d *= 2
	}
	return min(d, maxRetryDelay)
}

// publish пытается отправить событие attempts раз. Отмена ctx прерывает ожидание между попытками.
func (p retryPolicy) publish(ctx context.Context, publisher domain.OutboxPublisher, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		lastErr = publisher.Publish(event)
		if lastErr == nil {
			publishAttempts.WithLabelValues(resultSent).Inc()
			return nil
		}
		publishAttempts.WithLabelValues(resultRetryError).Inc()

		if attempt == p.attempts {
			break
		}
		if d := p.delay(attempt); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", p.attempts, lastErr)
}
