package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/Vishal8376/Farm2Consumer/internal/pricing"
	"github.com/Vishal8376/Farm2Consumer/internal/settlement"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Request struct {
	Method domain.PaymentMethod
	Notes  string
}

type Result struct {
	TransactionID string
	OrderID       string
	Total         decimal.Decimal
	State         domain.CheckoutState
}

// attempt tracks one checkout through its states.
type attempt struct {
	userID int64
	state  domain.CheckoutState
	txnID  string
	logger *zap.Logger
}

func (a *attempt) to(next domain.CheckoutState) {
	if !domain.CanTransitionTo(a.state, next) {
		a.logger.DPanic("illegal checkout transition",
			zap.String("from", a.state.String()),
			zap.String("to", next.String()))
		return
	}
	a.logger.Debug("checkout state changed",
		zap.String("from", a.state.String()),
		zap.String("to", next.String()),
		zap.String("transaction_id", a.txnID))
	a.state = next
}

// Checkout settles the user's cart and turns it into an order. Either a
// paid payment, an order and an empty cart all result, or the cart is left
// as it was and any payment created along the way ends failed.
func (s *Service) Checkout(ctx context.Context, userID int64, req Request) (*Result, error) {
	start := time.Now()
	a := &attempt{
		userID: userID,
		state:  domain.CheckoutStateInit,
		logger: s.logger.With(zap.Int64("user_id", userID)),
	}

	res, err := s.run(ctx, a, req)
	s.recorder.CheckoutFinished(outcomeOf(err), time.Since(start))
	if err != nil {
		a.logger.Info("checkout failed",
			zap.String("state", a.state.String()),
			zap.String("transaction_id", a.txnID),
			zap.Error(err))
		return nil, err
	}

	a.logger.Info("checkout committed",
		zap.String("transaction_id", res.TransactionID),
		zap.String("order_id", res.OrderID),
		zap.String("total", res.Total.StringFixed(pricing.Places)))
	return res, nil
}

func (s *Service) run(ctx context.Context, a *attempt, req Request) (*Result, error) {
	a.to(domain.CheckoutStateValidating)

	if missing := req.Method.MissingFields(); len(missing) > 0 {
		a.to(domain.CheckoutStateFailed)
		return nil, &PaymentInputError{Fields: missing}
	}

	lines, err := s.carts.ListLines(ctx, a.userID)
	if err != nil {
		a.to(domain.CheckoutStateFailed)
		return nil, fmt.Errorf("%w: list cart: %v", ErrStorageFailure, err)
	}
	if len(lines) == 0 {
		a.to(domain.CheckoutStateFailed)
		return nil, ErrEmptyCart
	}

	quote, err := s.price(ctx, lines)
	if err != nil {
		a.to(domain.CheckoutStateFailed)
		return nil, err
	}
	captured := domain.Snapshot(lines)

	txnID, err := newTransactionID()
	if err != nil {
		a.to(domain.CheckoutStateFailed)
		return nil, fmt.Errorf("%w: transaction id: %v", ErrStorageFailure, err)
	}
	payment := &domain.Payment{
		TransactionID: txnID,
		BuyerID:       a.userID,
		Amount:        quote.Total,
		Status:        domain.PaymentStatusPending,
		Method:        req.Method.Descriptor(),
		Notes:         req.Notes,
	}
	if err := s.ledger.CreatePayment(ctx, payment); err != nil {
		a.to(domain.CheckoutStateFailed)
		return nil, fmt.Errorf("%w: create payment: %v", ErrStorageFailure, err)
	}
	a.txnID = txnID
	a.to(domain.CheckoutStatePaymentPending)

	// From here on the payment exists and must be resolved before returning,
	// even if the caller gives up.
	resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ResolveTimeout)
	defer cancel()

	outcome, err := s.settle(ctx, payment.Amount, req.Method)
	if err != nil || outcome != settlement.OutcomePaid {
		a.to(domain.CheckoutStateSettlementFailed)
		s.failPayment(resolveCtx, a)
		return nil, settlementError(outcome, err)
	}
	a.to(domain.CheckoutStateSettled)

	order := &domain.Order{
		BuyerID:      a.userID,
		PaymentTxnID: txnID,
		Total:        quote.Total,
		Status:       domain.OrderStatusPending,
		Items:        quote.OrderItems(),
	}
	if !order.ItemsTotal().Equal(payment.Amount) {
		a.to(domain.CheckoutStateFailed)
		s.failPayment(resolveCtx, a)
		return nil, ErrTotalMismatch
	}

	err = s.materializer.Materialize(resolveCtx, &domain.Materialization{
		Order:         order,
		TransactionID: txnID,
		BuyerID:       a.userID,
		Lines:         captured,
	})
	if err != nil {
		a.to(domain.CheckoutStateFailed)
		s.failPayment(resolveCtx, a)
		if errors.Is(err, domain.ErrConcurrentCheckoutConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: materialize order: %v", ErrStorageFailure, err)
	}
	a.to(domain.CheckoutStateOrderCommitted)

	s.invalidator.Invalidate(a.userID)

	return &Result{
		TransactionID: txnID,
		OrderID:       order.ID,
		Total:         order.Total,
		State:         a.state,
	}, nil
}

// price re-reads every product so the quote uses current catalog prices.
func (s *Service) price(ctx context.Context, lines []domain.CartLine) (pricing.Quote, error) {
	in := make([]pricing.Line, 0, len(lines))
	for _, l := range lines {
		p, err := s.catalog.GetProduct(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return pricing.Quote{}, fmt.Errorf("product %d: %w", l.ProductID, err)
			}
			return pricing.Quote{}, fmt.Errorf("%w: get product %d: %v", ErrStorageFailure, l.ProductID, err)
		}
		in = append(in, pricing.Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    l.Quantity,
		})
	}
	return pricing.Price(in), nil
}

// settle calls the gateway with its own deadline. A gateway that ignores
// the deadline is abandoned and the attempt counts as timed out.
func (s *Service) settle(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod) (settlement.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SettlementTimeout)
	defer cancel()

	type answer struct {
		outcome settlement.Outcome
		err     error
	}
	done := make(chan answer, 1)
	go func() {
		o, err := s.gateway.AttemptSettlement(ctx, amount, method)
		done <- answer{o, err}
	}()

	select {
	case ans := <-done:
		if ans.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return settlement.OutcomeTimedOut, nil
		}
		return ans.outcome, ans.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return settlement.OutcomeTimedOut, nil
		}
		return settlement.OutcomeDeclined, ctx.Err()
	}
}

func settlementError(outcome settlement.Outcome, err error) error {
	switch {
	case err != nil:
		return fmt.Errorf("%w: %v", ErrSettlementDeclined, err)
	case outcome == settlement.OutcomeTimedOut:
		return ErrSettlementTimedOut
	default:
		return ErrSettlementDeclined
	}
}

// failPayment moves the attempt's payment from pending to failed. If that
// write is lost the payment stays pending until the reconciler fails it.
func (s *Service) failPayment(ctx context.Context, a *attempt) {
	err := s.ledger.TransitionPayment(ctx, a.txnID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
	if err != nil {
		a.logger.Error("failed to mark payment failed",
			zap.String("transaction_id", a.txnID),
			zap.Error(err))
	}
}

func newTransactionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInvalidPaymentInput):
		return "invalid_input"
	case errors.Is(err, ErrSettlementTimedOut):
		return "timed_out"
	case errors.Is(err, ErrSettlementDeclined):
		return "declined"
	case errors.Is(err, domain.ErrConcurrentCheckoutConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "product_missing"
	default:
		return "error"
	}
}
