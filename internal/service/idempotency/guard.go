package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

// ErrRequestInProgress — запрос с тем же ключом ещё обрабатывается.
var ErrRequestInProgress = errors.New("request with this idempotency key is still in progress")

// Response — ответ обработчика, который сохраняется под ключом и отдаётся при повторе.
type Response struct {
	Status int
	Body   []byte
}

// Handler выполняет сам запрос. Ошибка означает сбой, для которого нет готового ответа.
type Handler func(ctx context.Context) (Response, error)

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithKeyTTL задает срок хранения ключа.
func WithKeyTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardLogger задает logger для Guard.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard выполняет обработчик не более одного раза на ключ и повторяет сохранённый ответ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт Guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    defaultKeyTTL,
		logger: log.WithField("component", "idempotency-guard"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// RequestHash считает хеш запроса в пределах операции scope.
func RequestHash(scope string, payload []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(scope))
	hasher.Write([]byte{':'})
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}

// Execute выполняет handler не более одного раза для пары (owner, key).
// replayed == true, если ответ взят из сохранённой записи.
func (g *Guard) Execute(ctx context.Context, owner, key, requestHash string, handler Handler) (resp Response, replayed bool, err error) {
	record, err := g.repo.Reserve(ctx, domain.IdempotencyClaim{
		Owner:       owner,
		Key:         key,
		RequestHash: requestHash,
		ExpiresAt:   g.now().Add(g.ttl),
	})
	if err != nil {
		resp, err := replay(record, err)
		return resp, err == nil, err
	}

	logger := g.logger.WithFields(log.Fields{"owner": owner, "key": key})

	resp, err = handler(ctx)
	if err != nil {
		// Сбой без готового ответа не запоминается: повтор с тем же ключом выполнит запрос заново.
		if releaseErr := g.repo.Release(context.WithoutCancel(ctx), owner, key); releaseErr != nil {
			logger.WithError(releaseErr).Warn("failed to release idempotency key after handler error")
		}
		return Response{}, false, err
	}

	if err := g.repo.Complete(ctx, owner, key, domain.IdempotencyReply{HTTPStatus: resp.Status, Body: resp.Body}); err != nil {
		logger.WithError(err).Warn("failed to store idempotent response")
	}
	return resp, false, nil
}

func replay(record domain.IdempotencyRecord, reserveErr error) (Response, error) {
	switch {
	case errors.Is(reserveErr, domain.ErrIdempotencyKeyAlreadyExists):
	case errors.Is(reserveErr, domain.ErrIdempotencyHashMismatch),
		errors.Is(reserveErr, domain.ErrIdempotencyKeyRequired),
		errors.Is(reserveErr, domain.ErrIdempotencyRequestHashRequired):
		return Response{}, reserveErr
	default:
		return Response{}, fmt.Errorf("reserve idempotency key: %w", reserveErr)
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		return Response{}, ErrRequestInProgress
	}
	status := record.Reply.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	return Response{Status: status, Body: append([]byte(nil), record.Reply.Body...)}, nil
}
