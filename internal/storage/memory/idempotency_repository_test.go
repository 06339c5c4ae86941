package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/storage/memory"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, "idem-key-1", "hash-1", ttl)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	got, err := repo.Get(ctx, "idem-key-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", got.RequestHash)
	assert.True(t, got.TTLAt.Equal(ttl))

	_, err = repo.CreateProcessing(ctx, " ", "hash", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
	_, err = repo.CreateProcessing(ctx, "key", "", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	_, err := repo.CreateProcessing(ctx, "idem-key-2", "hash-a", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "idem-key-2", "hash-a", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	_, err = repo.CreateProcessing(ctx, "idem-key-2", "hash-b", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestIdempotencyRepository_FailedAndExpiredKeysCanBeRetaken(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "failed", "hash", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "failed", []byte(`{"error":"boom"}`), 500))

	retaken, err := repo.CreateProcessing(ctx, "failed", "hash", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, retaken.Status)
	assert.Empty(t, retaken.ResponseBody)

	_, err = repo.CreateProcessing(ctx, "expired", "hash-old", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "expired", "hash-new", time.Now().Add(time.Hour))
	require.NoError(t, err)
}

func TestIdempotencyRepository_MarkDoneAndDeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing(ctx, "idem-expired", "hash-expired", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "idem-active", "hash-active", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, repo.MarkDone(ctx, "idem-active", []byte(`{"ok":true}`), 200))

	active, err := repo.Get(ctx, "idem-active")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, active.Status)
	assert.Equal(t, 200, active.HTTPStatus)
	assert.True(t, active.Replayable())

	removed, err := repo.DeleteExpired(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "idem-expired")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	assert.ErrorIs(t, repo.MarkDone(ctx, "idem-expired", nil, 200), domain.ErrIdempotencyKeyNotFound)
}
