package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2/utils"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestIdempotencyRepository() (*idempotencyRepositoryInMemory, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	return newIdempotencyRepository(clock.Now), clock
}

func TestIdempotencyRepository_ReserveAndComplete(t *testing.T) {
	repo, clock := newTestIdempotencyRepository()
	ctx := context.Background()
	claim := domain.IdempotencyClaim{Owner: "reader@example.com", Key: "checkout-1", RequestHash: "h1", ExpiresAt: clock.Now().Add(time.Hour)}

	reserved, err := repo.Reserve(ctx, claim)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, reserved.Status)
	require.Equal(t, claim.ExpiresAt, reserved.ExpiresAt)

	body := []byte(`{"id":"o-1"}`)
	require.NoError(t, repo.Complete(ctx, claim.Owner, claim.Key, domain.IdempotencyReply{HTTPStatus: 201, Body: body}))
	body[0] = 'X'

	got, err := repo.Get(ctx, claim.Owner, claim.Key)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.Reply.HTTPStatus)
	require.Equal(t, `{"id":"o-1"}`, string(got.Reply.Body), "stored body must not alias the caller's slice")
}

func TestIdempotencyRepository_Conflicts(t *testing.T) {
	repo, clock := newTestIdempotencyRepository()
	ctx := context.Background()
	expires := clock.Now().Add(time.Hour)

	_, err := repo.Reserve(ctx, domain.IdempotencyClaim{Owner: "a@example.com", Key: "k", RequestHash: "h", ExpiresAt: expires})
	require.NoError(t, err)

	existing, err := repo.Reserve(ctx, domain.IdempotencyClaim{Owner: "a@example.com", Key: "k", RequestHash: "h", ExpiresAt: expires})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, "h", existing.RequestHash)

	_, err = repo.Reserve(ctx, domain.IdempotencyClaim{Owner: "a@example.com", Key: "k", RequestHash: "other", ExpiresAt: expires})
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	// Другой владелец может использовать тот же ключ.
	_, err = repo.Reserve(ctx, domain.IdempotencyClaim{Owner: "b@example.com", Key: "k", RequestHash: "other", ExpiresAt: expires})
	require.NoError(t, err)
}

func TestIdempotencyRepository_ExpiredKeyIsReusable(t *testing.T) {
	repo, clock := newTestIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.Reserve(ctx, domain.IdempotencyClaim{Key: "k", RequestHash: "old", ExpiresAt: clock.Now().Add(time.Minute)})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = repo.Get(ctx, "", "k")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	record, err := repo.Reserve(ctx, domain.IdempotencyClaim{Key: "k", RequestHash: "new"})
	require.NoError(t, err)
	require.Equal(t, "new", record.RequestHash)
	require.Equal(t, clock.Now().Add(defaultIdempotencyTTL), record.ExpiresAt)
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	repo, _ := newTestIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.Reserve(ctx, domain.IdempotencyClaim{Key: " ", RequestHash: "h"})
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.Reserve(ctx, domain.IdempotencyClaim{Key: "k"})
	require.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
	_, err = repo.Get(ctx, "o", "")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	require.ErrorIs(t, repo.Complete(ctx, "o", "missing", domain.IdempotencyReply{HTTPStatus: 200}), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	repo, clock := newTestIdempotencyRepository()
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := repo.Reserve(ctx, domain.IdempotencyClaim{Key: key, RequestHash: "h", ExpiresAt: clock.Now().Add(time.Minute)})
		require.NoError(t, err)
	}
	_, err := repo.Reserve(ctx, domain.IdempotencyClaim{Key: "live", RequestHash: "h", ExpiresAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	removed, err := repo.DeleteExpired(ctx, time.Time{}, 2)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	removed, err = repo.DeleteExpired(ctx, clock.Now(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "", "live")
	require.NoError(t, err)
}

func TestIdempotencyRepository_ReleaseOnlyProcessing(t *testing.T) {
	repo, _ := newTestIdempotencyRepository()
	ctx := context.Background()

	_, err := repo.Reserve(ctx, domain.IdempotencyClaim{Owner: "o", Key: "pending", RequestHash: "h"})
	require.NoError(t, err)
	_, err = repo.Reserve(ctx, domain.IdempotencyClaim{Owner: "o", Key: "done", RequestHash: "h"})
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, "o", "done", domain.IdempotencyReply{HTTPStatus: 201}))

	require.NoError(t, repo.Release(ctx, "o", "pending"))
	_, err = repo.Get(ctx, "o", "pending")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	require.ErrorIs(t, repo.Release(ctx, "o", "done"), domain.ErrIdempotencyKeyNotFound)
	record, err := repo.Get(ctx, "o", "done")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, record.Status)
}

func TestIdempotencyRepository_KeyDetachedFromCallerBuffer(t *testing.T) {
	repo, _ := newTestIdempotencyRepository()
	ctx := context.Background()

	buf := []byte("key-AAAA")
	_, err := repo.Reserve(ctx, domain.IdempotencyClaim{Owner: "o", Key: utils.UnsafeString(buf), RequestHash: "h"})
	require.NoError(t, err)
	copy(buf, "key-BBBB")

	record, err := repo.Get(ctx, "o", "key-AAAA")
	require.NoError(t, err)
	require.Equal(t, "key-AAAA", record.Key)
}
