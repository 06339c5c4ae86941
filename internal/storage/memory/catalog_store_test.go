package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
	"github.com/vladislavdragonenkov/agromarket/internal/storage/memory"
)

func TestCatalogStore_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCatalogStore()
	require.NoError(t, store.Upsert(ctx, newProduct("p-1", "seller-a", 5)))

	require.NoError(t, store.Reserve(ctx, "p-1", 3))
	assert.ErrorIs(t, store.Reserve(ctx, "p-1", 3), domain.ErrInsufficientStock)

	product, err := store.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, product.Stock, "failed reserve must not change stock")

	require.NoError(t, store.Release(ctx, "p-1", 3))
	product, err = store.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	assert.ErrorIs(t, store.Reserve(ctx, "missing", 1), domain.ErrProductNotFound)
	assert.ErrorIs(t, store.Release(ctx, "missing", 1), domain.ErrProductNotFound)
	assert.ErrorIs(t, store.Reserve(ctx, "p-1", 0), domain.ErrInvalidLineItem)
}

func TestCatalogStore_UpsertValidates(t *testing.T) {
	store := memory.NewCatalogStore()
	invalid := newProduct("p-1", "", 1)
	assert.ErrorIs(t, store.Upsert(context.Background(), invalid), domain.ErrInvalidInput)
}

func TestCatalogStore_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCatalogStore()
	require.NoError(t, store.Upsert(ctx, newProduct("p-1", "seller-a", 10)))

	var (
		wg      sync.WaitGroup
		success atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Reserve(ctx, "p-1", 1) == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	product, err := store.GetByID(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), success.Load())
	assert.Equal(t, 0, product.Stock)
}
