package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/Vishal8376/Farm2Consumer/internal/pricing"
	"github.com/shopspring/decimal"
)

type SummaryLine struct {
	LineID string
	pricing.Line
}

// Summary is the priced view of a cart shown before checkout.
type Summary struct {
	Lines []SummaryLine
	Total decimal.Decimal
}

type Confirmation struct {
	Payment *domain.Payment
	// Order is nil unless the payment is paid
	Order *domain.Order
}

func (s *Service) Summary(ctx context.Context, userID int64) (*Summary, error) {
	lines, err := s.carts.ListLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	quote, err := s.price(ctx, lines)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Lines: make([]SummaryLine, len(lines)), Total: quote.Total}
	for i, l := range quote.Lines {
		summary.Lines[i] = SummaryLine{LineID: lines[i].ID, Line: l}
	}
	return summary, nil
}

// Confirmation looks up a checkout by transaction id. Payments of other
// buyers are reported as not found.
func (s *Service) Confirmation(ctx context.Context, userID int64, txnID string) (*Confirmation, error) {
	payment, err := s.ledger.GetPayment(ctx, userID, txnID)
	if err != nil {
		return nil, err
	}
	conf := &Confirmation{Payment: payment}
	if payment.Status != domain.PaymentStatusPaid {
		return conf, nil
	}

	order, err := s.orders.GetOrderByPayment(ctx, userID, txnID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("paid payment %s has no order: %w", txnID, err)
		}
		return nil, err
	}
	conf.Order = order
	return conf, nil
}

// History lists the user's orders, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]*domain.Order, error) {
	return s.orders.ListOrders(ctx, userID)
}
