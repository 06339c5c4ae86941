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

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "AGR-20260101-AAAAAA", "buyer-1")

	require.NoError(t, repo.Create(ctx, order))

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)

	exists, err := repo.ExistsByNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_CreateDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	require.NoError(t, repo.Create(ctx, newOrder("order-1", "AGR-20260101-AAAAAA", "buyer-1")))

	err := repo.Create(ctx, newOrder("order-2", "AGR-20260101-AAAAAA", "buyer-1"))
	assert.ErrorIs(t, err, domain.ErrOrderNumberTaken)
}

func TestOrderRepository_StoredCopyIsIsolated(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "AGR-20260101-AAAAAA", "buyer-1")
	require.NoError(t, repo.Create(ctx, order))

	order.Items[0].Quantity = 99
	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Items[0].Quantity)

	stored.Items[0].Quantity = 77
	again, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Items[0].Quantity)
}

func TestOrderRepository_Lists(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	first := newOrder("order-1", "AGR-20260101-AAAAAA", "buyer-1")
	second := newOrder("order-2", "AGR-20260101-BBBBBB", "buyer-1",
		newProduct("p-2", "seller-b", 0).Snapshot(1))
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	third := newOrder("order-3", "AGR-20260101-CCCCCC", "buyer-2")
	third.CreatedAt = first.CreatedAt.Add(2 * time.Minute)
	for _, o := range []domain.Order{first, second, third} {
		require.NoError(t, repo.Create(ctx, o))
	}

	byBuyer, err := repo.FindByBuyer(ctx, "buyer-1", domain.OrderListFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, byBuyer, 2)
	assert.Equal(t, "order-2", byBuyer[0].ID, "newest first")

	bySeller, err := repo.FindBySeller(ctx, "seller-a", domain.OrderListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, bySeller, 2)

	all, err := repo.FindAll(ctx, domain.OrderListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "order-2", all[0].ID)

	filtered, err := repo.FindAll(ctx, domain.OrderListFilter{Status: domain.OrderStatusDelivered, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestOrderRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "AGR-20260101-AAAAAA", "buyer-1")
	require.NoError(t, repo.Create(ctx, order))

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, stored.ApplyTransition(domain.OrderStatusConfirmed, time.Now()))
	require.NoError(t, repo.Update(ctx, stored))

	updated, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, stored.Version+1, updated.Version)
}

func TestOrderRepository_UpdateVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", "AGR-20260101-AAAAAA", "buyer-1")
	require.NoError(t, repo.Create(ctx, order))

	order.Version = 42
	assert.ErrorIs(t, repo.Update(ctx, order), domain.ErrOrderVersionConflict)

	missing := newOrder("order-x", "AGR-20260101-XXXXXX", "buyer-1")
	assert.ErrorIs(t, repo.Update(ctx, missing), domain.ErrOrderNotFound)
}
