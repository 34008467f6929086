package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

type idempotencyKey struct {
	owner string
	key   string
}

type idempotencyRepositoryInMemory struct {
	mu      sync.Mutex
	records map[idempotencyKey]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return newIdempotencyRepository(func() time.Time { return time.Now().UTC() })
}

func newIdempotencyRepository(now func() time.Time) *idempotencyRepositoryInMemory {
	return &idempotencyRepositoryInMemory{
		records: make(map[idempotencyKey]domain.IdempotencyRecord),
		now:     now,
	}
}

func (r *idempotencyRepositoryInMemory) Reserve(_ context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	claim, err := claim.Normalize()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	now := r.now()
	if claim.ExpiresAt.IsZero() {
		claim.ExpiresAt = now.Add(defaultIdempotencyTTL)
	}
	// Строки запроса могут ссылаться на переиспользуемый буфер транспорта.
	claim.Owner, claim.Key = strings.Clone(claim.Owner), strings.Clone(claim.Key)
	id := idempotencyKey{owner: claim.Owner, key: claim.Key}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[id]; ok && !existing.Expired(now) {
		return cloneIdempotencyRecord(existing), existing.Conflict(claim)
	}

	record := domain.IdempotencyRecord{
		Owner:       claim.Owner,
		Key:         claim.Key,
		RequestHash: claim.RequestHash,
		Status:      domain.IdempotencyStatusProcessing,
		ExpiresAt:   claim.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.records[id] = record
	return record, nil
}

func (r *idempotencyRepositoryInMemory) Get(_ context.Context, owner, key string) (domain.IdempotencyRecord, error) {
	id, err := normalizeIdempotencyKey(owner, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok || record.Expired(r.now()) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return cloneIdempotencyRecord(record), nil
}

func (r *idempotencyRepositoryInMemory) Complete(_ context.Context, owner, key string, reply domain.IdempotencyReply) error {
	id, err := normalizeIdempotencyKey(owner, key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = reply.Status()
	record.Reply = domain.IdempotencyReply{
		HTTPStatus: reply.HTTPStatus,
		Body:       append([]byte(nil), reply.Body...),
	}
	record.UpdatedAt = r.now()
	r.records[id] = record
	return nil
}

func (r *idempotencyRepositoryInMemory) Release(_ context.Context, owner, key string) error {
	id, err := normalizeIdempotencyKey(owner, key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok || record.Status != domain.IdempotencyStatusProcessing {
		return domain.ErrIdempotencyKeyNotFound
	}
	delete(r.records, id)
	return nil
}

// DeleteExpired удаляет не больше limit записей, истёкших к моменту before.
func (r *idempotencyRepositoryInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, record := range r.records {
		if limit > 0 && removed >= limit {
			break
		}
		if record.ExpiresAt.After(before) {
			continue
		}
		delete(r.records, id)
		removed++
	}
	return removed, nil
}

func normalizeIdempotencyKey(owner, key string) (idempotencyKey, error) {
	id := idempotencyKey{owner: strings.TrimSpace(owner), key: strings.TrimSpace(key)}
	if id.key == "" {
		return id, domain.ErrIdempotencyKeyRequired
	}
	return id, nil
}

func cloneIdempotencyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.Reply.Body = append([]byte(nil), src.Reply.Body...)
	return dst
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
