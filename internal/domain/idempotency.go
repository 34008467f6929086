package domain

import (
	"net/http"
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: ответ 2xx сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: сохранён отказ или сбой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyClaim — заявка на ключ от имени владельца (email покупателя).
type IdempotencyClaim struct {
	Owner       string
	Key         string
	RequestHash string
	ExpiresAt   time.Time
}

// Normalize обрезает пробелы и проверяет обязательные поля.
func (c IdempotencyClaim) Normalize() (IdempotencyClaim, error) {
	c.Owner = strings.TrimSpace(c.Owner)
	c.Key = strings.TrimSpace(c.Key)
	c.RequestHash = strings.TrimSpace(c.RequestHash)
	switch {
	case c.Key == "":
		return c, ErrIdempotencyKeyRequired
	case c.RequestHash == "":
		return c, ErrIdempotencyRequestHashRequired
	}
	return c, nil
}

// IdempotencyReply — ответ, который отдаётся повторным запросам.
type IdempotencyReply struct {
	HTTPStatus int
	Body       []byte
}

// Status: 4xx и 5xx считаются отказом.
func (r IdempotencyReply) Status() IdempotencyStatus {
	if r.HTTPStatus >= http.StatusBadRequest {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// IdempotencyRecord — состояние ключа в хранилище.
type IdempotencyRecord struct {
	Owner       string
	Key         string
	RequestHash string
	Status      IdempotencyStatus
	Reply       IdempotencyReply
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired сообщает, истёк ли срок хранения записи к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Conflict сравнивает живую запись с новой заявкой и возвращает ошибку занятого ключа.
func (r IdempotencyRecord) Conflict(claim IdempotencyClaim) error {
	if r.RequestHash != claim.RequestHash {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
