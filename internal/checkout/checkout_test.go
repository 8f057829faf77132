package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/Vishal8376/Farm2Consumer/internal/memstore"
	"github.com/Vishal8376/Farm2Consumer/internal/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var card = domain.PaymentMethod{
	Kind:           domain.PaymentKindCard,
	CardholderName: "Asha Rao",
	CardNumber:     "4111 1111 1111 4242",
	Expiry:         "12/30",
	CVV:            "123",
}

const buyer int64 = 7

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newStore() *memstore.MemoryStore {
	store := memstore.NewMemoryStore()
	store.SetProduct(domain.Product{ID: 1, Name: "Heirloom Tomatoes", Price: dec("19.99"), AvailableQuantity: 40})
	store.SetProduct(domain.Product{ID: 2, Name: "Farm Eggs", Price: dec("4.50"), AvailableQuantity: 30})
	store.SetProduct(domain.Product{ID: 3, Name: "Alphonso Mangoes", Price: dec("10.00"), AvailableQuantity: 10})
	return store
}

// recordingLedger remembers every transaction id it was asked to create.
type recordingLedger struct {
	*memstore.MemoryStore
	mu   sync.Mutex
	txns []string
}

func (l *recordingLedger) CreatePayment(ctx context.Context, p *domain.Payment) error {
	l.mu.Lock()
	l.txns = append(l.txns, p.TransactionID)
	l.mu.Unlock()
	return l.MemoryStore.CreatePayment(ctx, p)
}

func (l *recordingLedger) statuses(t *testing.T) []domain.PaymentStatus {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.PaymentStatus, 0, len(l.txns))
	for _, id := range l.txns {
		p, err := l.MemoryStore.GetPayment(context.Background(), buyer, id)
		require.NoError(t, err)
		out = append(out, p.Status)
	}
	return out
}

type gatewayFunc func(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod) (settlement.Outcome, error)

func (f gatewayFunc) AttemptSettlement(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod) (settlement.Outcome, error) {
	return f(ctx, amount, method)
}

func fixed(o settlement.Outcome) settlement.Gateway {
	return gatewayFunc(func(context.Context, decimal.Decimal, domain.PaymentMethod) (settlement.Outcome, error) {
		return o, nil
	})
}

type failingMaterializer struct{ err error }

func (f failingMaterializer) Materialize(context.Context, *domain.Materialization) error {
	return f.err
}

type countingInvalidator struct {
	mu    sync.Mutex
	users []int64
}

func (c *countingInvalidator) Invalidate(userID int64) {
	c.mu.Lock()
	c.users = append(c.users, userID)
	c.mu.Unlock()
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) CheckoutFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

type fixture struct {
	store       *memstore.MemoryStore
	ledger      *recordingLedger
	invalidator *countingInvalidator
	recorder    *outcomeRecorder
}

func newFixture() *fixture {
	store := newStore()
	return &fixture{
		store:       store,
		ledger:      &recordingLedger{MemoryStore: store},
		invalidator: &countingInvalidator{},
		recorder:    &outcomeRecorder{},
	}
}

func (f *fixture) service(gw settlement.Gateway, m Materializer, opts Options) *Service {
	if m == nil {
		m = f.store
	}
	return NewService(Deps{
		Carts:        f.store,
		Catalog:      f.store,
		Ledger:       f.ledger,
		Orders:       f.store,
		Materializer: m,
		Gateway:      gw,
		Invalidator:  f.invalidator,
		Recorder:     f.recorder,
		Logger:       zap.NewNop(),
	}, opts)
}

func (f *fixture) add(t *testing.T, productID int64, qty int) {
	t.Helper()
	_, _, err := f.store.AddOrIncrement(context.Background(), buyer, productID, qty, 100)
	require.NoError(t, err)
}

func (f *fixture) cart(t *testing.T) []domain.CartLine {
	t.Helper()
	lines, err := f.store.ListLines(context.Background(), buyer)
	require.NoError(t, err)
	return lines
}

func TestCheckout_CommitsOrder(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 3)
	f.add(t, 2, 2)
	svc := f.service(fixed(settlement.OutcomePaid), nil, Options{})
	ctx := context.Background()

	res, err := svc.Checkout(ctx, buyer, Request{Method: card, Notes: "leave at gate"})
	require.NoError(t, err)

	assert.True(t, dec("68.97").Equal(res.Total), "total %s", res.Total)
	assert.Len(t, res.TransactionID, 32)
	assert.NotEmpty(t, res.OrderID)
	assert.Equal(t, domain.CheckoutStateOrderCommitted, res.State)
	assert.Empty(t, f.cart(t))

	conf, err := svc.Confirmation(ctx, buyer, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, conf.Payment.Status)
	assert.Equal(t, "card ****4242", conf.Payment.Method)
	assert.Equal(t, "leave at gate", conf.Payment.Notes)
	require.NotNil(t, conf.Order)
	assert.Equal(t, res.OrderID, conf.Order.ID)
	assert.True(t, conf.Order.Total.Equal(conf.Payment.Amount))
	require.Len(t, conf.Order.Items, 2)
	for _, item := range conf.Order.Items {
		if item.ProductID == 1 {
			assert.Equal(t, 3, item.Quantity)
			assert.True(t, dec("19.99").Equal(item.UnitPrice))
		}
	}

	assert.Equal(t, []int64{buyer}, f.invalidator.users)
	assert.Equal(t, []string{"committed"}, f.recorder.outcomes)

	events, err := f.store.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, res.OrderID, events[0].AggregateID)
}

func TestCheckout_EvenTotal(t *testing.T) {
	f := newFixture()
	f.add(t, 3, 2)
	svc := f.service(fixed(settlement.OutcomePaid), nil, Options{})

	res, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	require.NoError(t, err)
	assert.Equal(t, "20.00", res.Total.StringFixed(2))
}

func TestCheckout_PricesAtCheckoutTime(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 1)
	f.store.SetProduct(domain.Product{ID: 1, Name: "Heirloom Tomatoes", Price: dec("21.50"), AvailableQuantity: 40})
	svc := f.service(fixed(settlement.OutcomePaid), nil, Options{})

	res, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	require.NoError(t, err)
	assert.True(t, dec("21.50").Equal(res.Total))
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture()
	svc := f.service(fixed(settlement.OutcomePaid), nil, Options{})

	_, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Empty(t, f.ledger.txns)
	assert.Equal(t, []string{"empty_cart"}, f.recorder.outcomes)
}

func TestCheckout_InvalidPaymentInputCreatesNoPayment(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 1)
	svc := f.service(fixed(settlement.OutcomePaid), nil, Options{})
	bad := card
	bad.CardNumber = ""
	bad.Expiry = " "

	_, err := svc.Checkout(context.Background(), buyer, Request{Method: bad})
	require.ErrorIs(t, err, ErrInvalidPaymentInput)

	var inputErr *PaymentInputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, []string{"card_number", "expiry"}, inputErr.Fields)
	assert.Empty(t, f.ledger.txns)
	assert.Len(t, f.cart(t), 1)
}

func TestCheckout_DeclinedLeavesCartAndFailsPayment(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 3)
	before := f.cart(t)
	svc := f.service(fixed(settlement.OutcomeDeclined), nil, Options{})

	_, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	assert.ErrorIs(t, err, ErrSettlementDeclined)

	assert.Equal(t, before, f.cart(t))
	assert.Equal(t, []domain.PaymentStatus{domain.PaymentStatusFailed}, f.ledger.statuses(t))
	history, err := svc.History(context.Background(), buyer)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.invalidator.users)
}

func TestCheckout_GatewayErrorIsDecline(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 1)
	gw := gatewayFunc(func(context.Context, decimal.Decimal, domain.PaymentMethod) (settlement.Outcome, error) {
		return settlement.OutcomeDeclined, errors.New("connection reset")
	})
	svc := f.service(gw, nil, Options{})

	_, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	assert.ErrorIs(t, err, ErrSettlementDeclined)
	assert.Equal(t, []domain.PaymentStatus{domain.PaymentStatusFailed}, f.ledger.statuses(t))
}

func TestCheckout_SettlementTimeout(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 1)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	// ignores its context entirely
	stuck := gatewayFunc(func(context.Context, decimal.Decimal, domain.PaymentMethod) (settlement.Outcome, error) {
		<-release
		return settlement.OutcomePaid, nil
	})
	svc := f.service(stuck, nil, Options{SettlementTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	assert.ErrorIs(t, err, ErrSettlementTimedOut)
	assert.Less(t, time.Since(start), time.Second)

	assert.Len(t, f.cart(t), 1)
	assert.Equal(t, []domain.PaymentStatus{domain.PaymentStatusFailed}, f.ledger.statuses(t))
	assert.Equal(t, []string{"timed_out"}, f.recorder.outcomes)
}

func TestCheckout_SimulatedGatewayTimeout(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 1)
	svc := f.service(settlement.NewSimulated(nil, time.Second), nil, Options{SettlementTimeout: 10 * time.Millisecond})

	_, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	assert.ErrorIs(t, err, ErrSettlementTimedOut)
}

func TestCheckout_CallerCancelStillResolvesPayment(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	gw := gatewayFunc(func(context.Context, decimal.Decimal, domain.PaymentMethod) (settlement.Outcome, error) {
		cancel()
		return settlement.OutcomeDeclined, context.Canceled
	})
	svc := f.service(gw, nil, Options{})

	_, err := svc.Checkout(ctx, buyer, Request{Method: card})
	assert.ErrorIs(t, err, ErrSettlementDeclined)
	assert.Equal(t, []domain.PaymentStatus{domain.PaymentStatusFailed}, f.ledger.statuses(t))
}

func TestCheckout_MaterializeFailureLeavesNoTrace(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 3)
	f.add(t, 2, 2)
	before := f.cart(t)
	svc := f.service(fixed(settlement.OutcomePaid), failingMaterializer{err: errors.New("disk full")}, Options{})
	ctx := context.Background()

	_, err := svc.Checkout(ctx, buyer, Request{Method: card})
	assert.ErrorIs(t, err, ErrStorageFailure)

	assert.Equal(t, before, f.cart(t))
	assert.Equal(t, []domain.PaymentStatus{domain.PaymentStatusFailed}, f.ledger.statuses(t))
	history, err := svc.History(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, history)
	events, err := f.store.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCheckout_ConcurrentDoubleSubmit(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 3)

	// both attempts reach settlement before either materializes
	var arrived sync.WaitGroup
	arrived.Add(2)
	barrier := gatewayFunc(func(ctx context.Context, _ decimal.Decimal, _ domain.PaymentMethod) (settlement.Outcome, error) {
		arrived.Done()
		arrived.Wait()
		return settlement.OutcomePaid, nil
	})
	svc := f.service(barrier, nil, Options{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Checkout(context.Background(), buyer, Request{Method: card})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConcurrentCheckoutConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	history, err := svc.History(context.Background(), buyer)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Empty(t, f.cart(t))
	assert.ElementsMatch(t,
		[]domain.PaymentStatus{domain.PaymentStatusPaid, domain.PaymentStatusFailed},
		f.ledger.statuses(t))
}

func TestCheckout_LineIncrementedDuringSettlementConflicts(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 2)

	bump := gatewayFunc(func(ctx context.Context, _ decimal.Decimal, _ domain.PaymentMethod) (settlement.Outcome, error) {
		_, _, err := f.store.AddOrIncrement(ctx, buyer, 1, 3, 100)
		assert.NoError(t, err)
		return settlement.OutcomePaid, nil
	})
	svc := f.service(bump, nil, Options{})

	_, err := svc.Checkout(context.Background(), buyer, Request{Method: card})
	assert.ErrorIs(t, err, domain.ErrConcurrentCheckoutConflict)

	lines := f.cart(t)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)

	history, err := svc.History(context.Background(), buyer)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, []domain.PaymentStatus{domain.PaymentStatusFailed}, f.ledger.statuses(t))
}

func TestCheckout_ProductRemovedFromCatalog(t *testing.T) {
	f := newFixture()
	f.add(t, 1, 1)
	_, _, err := f.store.AddOrIncrement(context.Background(), buyer, 99, 1, 5)
	require.NoError(t, err)
	svc := f.service(fixed(settlement.OutcomePaid), nil, Options{})

	_, err = svc.Checkout(context.Background(), buyer, Request{Method: card})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.ledger.txns)
}
