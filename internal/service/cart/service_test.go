package cart_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/cart"
	"github.com/vladislavdragonenkov/orderflow/internal/service/order"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

func newCartService(t *testing.T) (*cart.Service, *order.Service) {
	t.Helper()
	events := memory.NewEventStore()
	orders := order.NewServiceWithoutMetrics(memory.NewOrderRepository(events), events, nil)
	return cart.NewService(memory.NewCartRepository(), orders, nil), orders
}

func TestAddItem_MergesSameProduct(t *testing.T) {
	svc, _ := newCartService(t)

	_, err := svc.AddItem(20, domain.CartItem{ProductID: 100, SupplierID: 10, Qty: 2, UnitPriceMinor: 10000, VatRateBp: 2000})
	require.NoError(t, err)
	updated, err := svc.AddItem(20, domain.CartItem{ProductID: 100, SupplierID: 10, Qty: 3, UnitPriceMinor: 10000, VatRateBp: 2000})
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	require.Equal(t, int32(5), updated.Items[0].Qty)

	_, err = svc.AddItem(20, domain.CartItem{ProductID: 100, SupplierID: 10, Qty: 0})
	require.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	svc, _ := newCartService(t)

	_, err := svc.AddItem(20, domain.CartItem{ProductID: 100, SupplierID: 10, Qty: 2, UnitPriceMinor: 10000})
	require.NoError(t, err)

	updated, err := svc.UpdateItem(20, 100, 10, 7)
	require.NoError(t, err)
	require.Equal(t, int32(7), updated.Items[0].Qty)

	_, err = svc.UpdateItem(20, 999, 10, 1)
	require.ErrorIs(t, err, domain.ErrCartItemNotFound)

	cleared, err := svc.RemoveItem(20, 100, 10)
	require.NoError(t, err)
	require.Empty(t, cleared.Items)
}

func TestGet_MissingCartIsEmpty(t *testing.T) {
	svc, _ := newCartService(t)

	cart, err := svc.Get(20)
	require.NoError(t, err)
	require.Equal(t, int64(20), cart.CustomerID)
	require.Empty(t, cart.Items)
}

func TestCheckout_OneOrderPerSupplier(t *testing.T) {
	svc, orders := newCartService(t)

	_, err := svc.AddItem(20, domain.CartItem{ProductID: 100, SupplierID: 10, Qty: 5, UnitPriceMinor: 10000, VatRateBp: 2000})
	require.NoError(t, err)
	_, err = svc.AddItem(20, domain.CartItem{ProductID: 200, SupplierID: 11, Qty: 1, UnitPriceMinor: 7000, VatRateBp: 2000})
	require.NoError(t, err)

	created, err := svc.Checkout(20, cart.CheckoutInput{DeliveryAddress: "Minsk, Pobediteley ave. 7"})
	require.NoError(t, err)
	require.Len(t, created, 2)

	suppliers := map[int64]bool{}
	for _, o := range created {
		suppliers[o.SupplierID] = true
		require.Equal(t, domain.OrderStatusPendingConfirmation, o.Status)
		require.Equal(t, int64(20), o.CustomerID)

		loaded, err := orders.Get(o.ID, 20)
		require.NoError(t, err)
		require.Len(t, loaded.Items, 1)
	}
	require.True(t, suppliers[10] && suppliers[11])

	// Корзина очищена.
	cleared, err := svc.Get(20)
	require.NoError(t, err)
	require.Empty(t, cleared.Items)

	// Повторный checkout пустой корзины — ошибка.
	_, err = svc.Checkout(20, cart.CheckoutInput{DeliveryAddress: "Minsk"})
	require.Error(t, err)
}
