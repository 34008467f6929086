package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const defaultIdempotencyTTL = 24 * time.Hour

const selectIdempotencySQL = `
	SELECT owner, key, request_hash, response_body, http_status, status, expires_at, created_at, updated_at
	FROM idempotency_keys
	WHERE owner = $1 AND key = $2`

type idempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Reserve вставляет запись или перезаписывает истёкшую одним INSERT ... ON CONFLICT.
// Если строка не изменилась, ключ занят живой записью.
func (r *idempotencyRepository) Reserve(ctx context.Context, claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	claim, err := claim.Normalize()
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	now := r.now()
	if claim.ExpiresAt.IsZero() {
		claim.ExpiresAt = now.Add(defaultIdempotencyTTL)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (owner, key, request_hash, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (owner, key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash,
		    response_body = NULL,
		    http_status = NULL,
		    status = EXCLUDED.status,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
	`, claim.Owner, claim.Key, claim.RequestHash, string(domain.IdempotencyStatusProcessing), claim.ExpiresAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency rows affected: %w", err)
	}
	if inserted == 0 {
		existing, getErr := r.load(ctx, claim.Owner, claim.Key)
		if getErr != nil {
			// Запись успели удалить между INSERT и SELECT: ключ всё равно считается занятым.
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return existing, existing.Conflict(claim)
	}

	return domain.IdempotencyRecord{
		Owner:       claim.Owner,
		Key:         claim.Key,
		RequestHash: claim.RequestHash,
		Status:      domain.IdempotencyStatusProcessing,
		ExpiresAt:   claim.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Get возвращает живую запись; истёкшая считается отсутствующей.
func (r *idempotencyRepository) Get(ctx context.Context, owner, key string) (domain.IdempotencyRecord, error) {
	owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := r.load(ctx, owner, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if record.Expired(r.now()) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

func (r *idempotencyRepository) load(ctx context.Context, owner, key string) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, selectIdempotencySQL, owner, key).Scan(
		&record.Owner,
		&record.Key,
		&record.RequestHash,
		&record.Reply.Body,
		&httpStatus,
		&status,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	case err != nil:
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, key)
	}
	record.Reply.HTTPStatus = int(httpStatus.Int64)
	return record, nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, owner, key string, reply domain.IdempotencyReply) error {
	owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET response_body = $1, http_status = $2, status = $3, updated_at = $4
		WHERE owner = $5 AND key = $6
	`, reply.Body, reply.HTTPStatus, string(reply.Status()), r.now(), owner, key)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if updated == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// Release удаляет только незавершённую запись: готовый ответ уже мог уйти клиенту.
func (r *idempotencyRepository) Release(ctx context.Context, owner, key string) error {
	owner, key = strings.TrimSpace(owner), strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE owner = $1 AND key = $2 AND status = $3
	`, owner, key, string(domain.IdempotencyStatusProcessing))
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if removed == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет истёкшие записи пачкой, самые старые первыми. limit <= 0 снимает ограничение.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE (owner, key) IN (
			SELECT owner, key
			FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT NULLIF($2, 0)
		)
	`, before, max(limit, 0))
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(removed), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
