package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *MemoryStore {
	store := NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return store
}

func pendingPayment(t *testing.T, s *MemoryStore, txnID string, buyerID int64) {
	require.NoError(t, s.CreatePayment(context.Background(), &domain.Payment{
		TransactionID: txnID,
		BuyerID:       buyerID,
		Amount:        decimal.RequireFromString("10.00"),
	}))
}

func snapshot(lines ...*domain.CartLine) []domain.LineSnapshot {
	snaps := make([]domain.LineSnapshot, len(lines))
	for i, l := range lines {
		snaps[i] = domain.LineSnapshot{ID: l.ID, Quantity: l.Quantity}
	}
	return snaps
}

func materialization(txnID string, buyerID int64, lines ...*domain.CartLine) *domain.Materialization {
	return &domain.Materialization{
		TransactionID: txnID,
		BuyerID:       buyerID,
		Lines:         snapshot(lines...),
		Order: &domain.Order{
			Total: decimal.RequireFromString("10.00"),
			Items: []domain.OrderItem{{ProductID: 1, Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")}},
		},
	}
}

func TestMemoryStore_Products(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	store.SetProduct(domain.Product{ID: 2, Name: "Mangoes"})
	store.SetProduct(domain.Product{ID: 1, Name: "Tomatoes"})

	products, err := store.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)

	_, err = store.GetProduct(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_AddOrIncrement(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, clamped, err := store.AddOrIncrement(ctx, 1, 10, 1, 2)
	require.NoError(t, err)
	assert.False(t, clamped)

	second, clamped, err := store.AddOrIncrement(ctx, 1, 10, 1, 2)
	require.NoError(t, err)
	assert.False(t, clamped)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Quantity)

	third, clamped, err := store.AddOrIncrement(ctx, 1, 10, 1, 2)
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, 2, third.Quantity)

	_, _, err = store.AddOrIncrement(ctx, 1, 10, 0, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, _, err = store.AddOrIncrement(ctx, 1, 11, 1, 0)
	assert.ErrorIs(t, err, domain.ErrStockExhausted)
}

func TestMemoryStore_ConcurrentAdds(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = store.AddOrIncrement(ctx, 1, 10, 1, 1000)
		}()
	}
	wg.Wait()

	lines, err := store.ListLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 50, lines[0].Quantity)
}

func TestMemoryStore_DeleteLine(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	line, _, err := store.AddOrIncrement(ctx, 1, 10, 1, 5)
	require.NoError(t, err)

	assert.ErrorIs(t, store.DeleteLine(ctx, 2, line.ID), domain.ErrNotFound)
	require.NoError(t, store.DeleteLine(ctx, 1, line.ID))
	assert.ErrorIs(t, store.DeleteLine(ctx, 1, line.ID), domain.ErrNotFound)
}

func TestMemoryStore_DrainIsAllOrNothing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a, _, _ := store.AddOrIncrement(ctx, 1, 10, 1, 5)
	b, _, _ := store.AddOrIncrement(ctx, 1, 11, 1, 5)

	_, err := store.DrainLines(ctx, 1, append(snapshot(a), domain.LineSnapshot{ID: "missing", Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrConcurrentCheckoutConflict)

	lines, err := store.ListLines(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	drained, err := store.DrainLines(ctx, 1, snapshot(a, b))
	require.NoError(t, err)
	assert.Len(t, drained, 2)

	require.NoError(t, store.RestoreLines(ctx, 1, drained))
	lines, err = store.ListLines(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestMemoryStore_DrainRejectsChangedQuantity(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	a, _, _ := store.AddOrIncrement(ctx, 1, 10, 2, 5)
	captured := snapshot(a)
	_, _, err := store.AddOrIncrement(ctx, 1, 10, 1, 5)
	require.NoError(t, err)

	_, err = store.DrainLines(ctx, 1, captured)
	assert.ErrorIs(t, err, domain.ErrConcurrentCheckoutConflict)

	pendingPayment(t, store, "t1", 1)
	err = store.Materialize(ctx, &domain.Materialization{
		TransactionID: "t1",
		BuyerID:       1,
		Lines:         captured,
		Order:         materialization("t1", 1).Order,
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentCheckoutConflict)

	lines, err := store.ListLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestMemoryStore_PaymentLedger(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	pendingPayment(t, store, "t1", 1)
	err := store.CreatePayment(ctx, &domain.Payment{TransactionID: "t1", BuyerID: 1})
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	_, err = store.GetPayment(ctx, 2, "t1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.TransitionPayment(ctx, "t1", domain.PaymentStatusPending, domain.PaymentStatusFailed))
	err = store.TransitionPayment(ctx, "t1", domain.PaymentStatusPending, domain.PaymentStatusPaid)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	p, err := store.GetPayment(ctx, 1, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
}

func TestMemoryStore_Materialize(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	line, _, _ := store.AddOrIncrement(ctx, 1, 10, 1, 5)
	pendingPayment(t, store, "t1", 1)

	require.NoError(t, store.Materialize(ctx, materialization("t1", 1, line)))

	lines, _ := store.ListLines(ctx, 1)
	assert.Empty(t, lines)

	p, _ := store.GetPayment(ctx, 1, "t1")
	assert.Equal(t, domain.PaymentStatusPaid, p.Status)

	order, err := store.GetOrderByPayment(ctx, 1, "t1")
	require.NoError(t, err)
	assert.Len(t, order.Items, 1)

	events, err := store.GetUnprocessedEvents(ctx, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NoError(t, store.MarkEventAsProcessed(ctx, events[0].ID))
	events, _ = store.GetUnprocessedEvents(ctx, 100)
	assert.Empty(t, events)
}

func TestMemoryStore_MaterializeFailureLeavesNoTrace(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	line, _, _ := store.AddOrIncrement(ctx, 1, 10, 1, 5)
	pendingPayment(t, store, "t1", 1)
	require.NoError(t, store.TransitionPayment(ctx, "t1", domain.PaymentStatusPending, domain.PaymentStatusFailed))

	err := store.Materialize(ctx, materialization("t1", 1, line))
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	lines, _ := store.ListLines(ctx, 1)
	assert.Len(t, lines, 1)
	orders, _ := store.ListOrders(ctx, 1)
	assert.Empty(t, orders)
	events, _ := store.GetUnprocessedEvents(ctx, 100)
	assert.Empty(t, events)
}

func TestMemoryStore_ListOrdersNewestFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, txn := range []string{"t1", "t2", "t3"} {
		pendingPayment(t, store, txn, 1)
		require.NoError(t, store.CommitOrder(ctx, materialization(txn, 1)))
	}

	orders, err := store.ListOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "t3", orders[0].PaymentTxnID)
	assert.Equal(t, "t1", orders[2].PaymentTxnID)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ListLines(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
