package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	invmemory "github.com/commercekit/orderflow/internal/domains/inventory/adapters/memory"
	"github.com/commercekit/orderflow/internal/domains/inventory/domain"
)

func newStockService(t *testing.T, items ...*domain.StockItem) *Service {
	t.Helper()
	repo := invmemory.NewRepository()
	svc := NewService(repo)
	for _, item := range items {
		require.NoError(t, svc.SetStock(context.Background(), item))
	}
	return svc
}

func TestReserve_HoldsStock(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 5})

	err := svc.Reserve(context.Background(), []domain.Line{{ProductID: "sku-1", Quantity: 5}})
	require.NoError(t, err)

	item, err := svc.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), item.Inventory)
	require.Equal(t, int64(5), item.Reserved)
}

func TestReserve_InsufficientStock(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 3})

	err := svc.Reserve(context.Background(), []domain.Line{{ProductID: "sku-1", Quantity: 5}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	item, err := svc.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), item.Inventory)
	require.Equal(t, int64(0), item.Reserved)
}

func TestReserve_AllOrNothingAcrossLines(t *testing.T) {
	svc := newStockService(t,
		&domain.StockItem{ProductID: "sku-1", Inventory: 10},
		&domain.StockItem{ProductID: "sku-2", Inventory: 1},
	)

	err := svc.Reserve(context.Background(), []domain.Line{
		{ProductID: "sku-1", Quantity: 4},
		{ProductID: "sku-2", Quantity: 2},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	item, err := svc.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), item.Inventory)
	require.Equal(t, int64(0), item.Reserved)
}

func TestReserve_RejectsNonPositiveQuantity(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 10})
	err := svc.Reserve(context.Background(), []domain.Line{{ProductID: "sku-1", Quantity: 0}})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestReserve_BackorderBypassesAvailabilityCheck(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 1, AllowBackorder: true})

	err := svc.Reserve(context.Background(), []domain.Line{{ProductID: "sku-1", Quantity: 5}})
	require.NoError(t, err)

	item, err := svc.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(-4), item.Inventory)
	require.Equal(t, int64(5), item.Reserved)
}

func TestReleaseThenReserveSucceeds(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 5})
	lines := []domain.Line{{ProductID: "sku-1", Quantity: 5}}

	require.NoError(t, svc.Reserve(context.Background(), lines))
	require.ErrorIs(t, svc.Reserve(context.Background(), lines), domain.ErrInsufficientStock)
	require.NoError(t, svc.Release(context.Background(), lines))
	require.NoError(t, svc.Reserve(context.Background(), lines))
}

func TestCommit_ConvertsReservation(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 5})
	lines := []domain.Line{{ProductID: "sku-1", Quantity: 3}}

	require.NoError(t, svc.Reserve(context.Background(), lines))
	require.NoError(t, svc.Commit(context.Background(), lines))

	item, err := svc.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), item.Inventory)
	require.Equal(t, int64(0), item.Reserved)
	require.Equal(t, int64(3), item.SoldCount)
}

func TestCommit_WithoutReservationFails(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 5})
	err := svc.Commit(context.Background(), []domain.Line{{ProductID: "sku-1", Quantity: 3}})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestRestock_CreditsReturnedUnits(t *testing.T) {
	svc := newStockService(t, &domain.StockItem{ProductID: "sku-1", Inventory: 5})
	lines := []domain.Line{{ProductID: "sku-1", Quantity: 3}}

	require.NoError(t, svc.Reserve(context.Background(), lines))
	require.NoError(t, svc.Commit(context.Background(), lines))
	require.NoError(t, svc.Restock(context.Background(), lines))

	item, err := svc.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), item.Inventory)
	require.Equal(t, int64(0), item.SoldCount)
}

func TestLowStock(t *testing.T) {
	item := &domain.StockItem{ProductID: "sku-1", Inventory: 2, LowStockThreshold: 5}
	require.True(t, item.LowStock())
	item.Inventory = 5
	require.False(t, item.LowStock())
}
