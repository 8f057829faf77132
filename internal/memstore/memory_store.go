// Package memstore is an in-memory backend implementing every store the
// checkout core needs. A single mutex guards all state, which makes
// Materialize trivially atomic.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/google/uuid"
)

var ErrDuplicateTransaction = errors.New("payment with this transaction id already exists")

// MemoryStore implements the catalog, cart, ledger, order and outbox stores
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]*domain.Product
	lines    map[string]*domain.CartLine // lineID -> line
	payments map[string]*domain.Payment  // transactionID -> payment
	orders   []*domain.Order
	outbox   []*domain.OutboxEvent
	outboxID int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]*domain.Product),
		lines:    make(map[string]*domain.CartLine),
		payments: make(map[string]*domain.Payment),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

// SetProduct inserts or replaces a catalog product
func (s *MemoryStore) SetProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

func (s *MemoryStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]*domain.Product, 0, len(s.products))
	for _, p := range s.products {
		cp := *p
		products = append(products, &cp)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *MemoryStore) AddOrIncrement(ctx context.Context, userID, productID int64, delta, limit int) (*domain.CartLine, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if delta <= 0 {
		return nil, false, domain.ErrInvalidQuantity
	}
	if limit <= 0 {
		return nil, false, domain.ErrStockExhausted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.lines {
		if l.UserID == userID && l.ProductID == productID {
			want := l.Quantity + delta
			l.Quantity = min(want, limit)
			cp := *l
			return &cp, want > limit, nil
		}
	}

	line := &domain.CartLine{
		ID:        uuid.NewString(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  min(delta, limit),
		AddedAt:   s.now(),
	}
	s.lines[line.ID] = line
	cp := *line
	return &cp, delta > limit, nil
}

func (s *MemoryStore) GetLine(ctx context.Context, lineID string) (*domain.CartLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lines[lineID]
	if !ok {
		return nil, fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) DeleteLine(ctx context.Context, userID int64, lineID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lines[lineID]
	if !ok || l.UserID != userID {
		return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	delete(s.lines, lineID)
	return nil
}

func (s *MemoryStore) ListLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := []domain.CartLine{}
	for _, l := range s.lines {
		if l.UserID == userID {
			lines = append(lines, *l)
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ID < lines[j].ID
	})
	return lines, nil
}

func (s *MemoryStore) DrainLines(ctx context.Context, userID int64, snaps []domain.LineSnapshot) ([]domain.CartLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainLocked(userID, snaps)
}

func (s *MemoryStore) RestoreLines(ctx context.Context, userID int64, lines []domain.CartLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, restored := range lines {
		restored := restored // per-iteration copy; &restored is stored below
		merged := false
		for _, l := range s.lines {
			if l.UserID == userID && l.ProductID == restored.ProductID {
				l.Quantity += restored.Quantity
				merged = true
				break
			}
		}
		if !merged {
			restored.UserID = userID
			s.lines[restored.ID] = &restored
		}
	}
	return nil
}

// drainLocked removes all of snaps or none of them.
func (s *MemoryStore) drainLocked(userID int64, snaps []domain.LineSnapshot) ([]domain.CartLine, error) {
	if err := s.checkDrainLocked(userID, snaps); err != nil {
		return nil, err
	}
	drained := make([]domain.CartLine, 0, len(snaps))
	for _, snap := range snaps {
		drained = append(drained, *s.lines[snap.ID])
		delete(s.lines, snap.ID)
	}
	return drained, nil
}

func (s *MemoryStore) checkDrainLocked(userID int64, snaps []domain.LineSnapshot) error {
	for _, snap := range snaps {
		l, ok := s.lines[snap.ID]
		if !ok || l.UserID != userID || l.Quantity != snap.Quantity {
			return domain.ErrConcurrentCheckoutConflict
		}
	}
	return nil
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	if p.Status != domain.PaymentStatusPending {
		return fmt.Errorf("create payment in status %s: %w", p.Status, domain.ErrInvalidStateTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.TransactionID]; exists {
		return ErrDuplicateTransaction
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.payments[p.TransactionID] = &cp
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, buyerID int64, txnID string) (*domain.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[txnID]
	if !ok || p.BuyerID != buyerID {
		return nil, fmt.Errorf("payment %s: %w", txnID, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) TransitionPayment(ctx context.Context, txnID string, from, to domain.PaymentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(txnID, from, to)
}

func (s *MemoryStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*domain.Payment
	for _, p := range s.payments {
		if p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			cp := *p
			stale = append(stale, &cp)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *MemoryStore) transitionLocked(txnID string, from, to domain.PaymentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidStateTransition)
	}
	p, ok := s.payments[txnID]
	if !ok {
		return fmt.Errorf("payment %s: %w", txnID, domain.ErrNotFound)
	}
	if p.Status != from {
		return fmt.Errorf("payment %s is %s, not %s: %w", txnID, p.Status, from, domain.ErrInvalidStateTransition)
	}
	p.Status = to
	p.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []*domain.Order{}
	// orders are appended in creation order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].BuyerID == buyerID {
			orders = append(orders, copyOrder(s.orders[i]))
		}
	}
	return orders, nil
}

func (s *MemoryStore) GetOrderByPayment(ctx context.Context, buyerID int64, txnID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.PaymentTxnID == txnID && o.BuyerID == buyerID {
			return copyOrder(o), nil
		}
	}
	return nil, fmt.Errorf("order for payment %s: %w", txnID, domain.ErrNotFound)
}

// Materialize applies the drain, order creation, outbox write and payment
// transition under one lock. Every precondition is checked before anything
// is mutated.
func (s *MemoryStore) Materialize(ctx context.Context, m *domain.Materialization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDrainLocked(m.BuyerID, m.Lines); err != nil {
		return err
	}
	if err := s.checkCommitLocked(m); err != nil {
		return err
	}

	if _, err := s.drainLocked(m.BuyerID, m.Lines); err != nil {
		return err
	}
	return s.commitLocked(m)
}

func (s *MemoryStore) CommitOrder(ctx context.Context, m *domain.Materialization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCommitLocked(m); err != nil {
		return err
	}
	return s.commitLocked(m)
}

func (s *MemoryStore) checkCommitLocked(m *domain.Materialization) error {
	p, ok := s.payments[m.TransactionID]
	if !ok {
		return fmt.Errorf("payment %s: %w", m.TransactionID, domain.ErrNotFound)
	}
	if p.Status != domain.PaymentStatusPending {
		return fmt.Errorf("payment %s is %s: %w", m.TransactionID, p.Status, domain.ErrInvalidStateTransition)
	}
	return nil
}

func (s *MemoryStore) commitLocked(m *domain.Materialization) error {
	o := m.Order
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = domain.OrderStatusPending
	}
	o.BuyerID = m.BuyerID
	o.PaymentTxnID = m.TransactionID
	o.CreatedAt = s.now()

	payload, err := json.Marshal(domain.NewOrderPlaced(o))
	if err != nil {
		return fmt.Errorf("marshal order placed event: %w", err)
	}

	s.orders = append(s.orders, copyOrder(o))
	s.outboxID++
	s.outbox = append(s.outbox, &domain.OutboxEvent{
		ID:          s.outboxID,
		EventID:     uuid.NewString(),
		AggregateID: o.ID,
		EventType:   domain.EventTypeOrderPlaced,
		Payload:     payload,
		CreatedAt:   o.CreatedAt,
	})
	return s.transitionLocked(m.TransactionID, domain.PaymentStatusPending, domain.PaymentStatusPaid)
}

func (s *MemoryStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(limit, len(s.outbox))
	events := make([]*domain.OutboxEvent, n)
	for i := 0; i < n; i++ {
		cp := *s.outbox[i]
		events[i] = &cp
	}
	return events, nil
}

func (s *MemoryStore) MarkEventAsProcessed(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.outbox {
		if e.ID == id {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	if cp.Items == nil {
		cp.Items = []domain.OrderItem{}
	}
	return &cp
}
