package checkout

import (
	"context"
	"errors"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"go.uber.org/zap"
)

type CartDrainer interface {
	DrainLines(ctx context.Context, userID int64, snaps []domain.LineSnapshot) ([]domain.CartLine, error)
	RestoreLines(ctx context.Context, userID int64, lines []domain.CartLine) error
}

// OrderCommitter writes the order, its outbox event and the paid payment in
// one unit. GetPayment tells an unacknowledged commit from a failed one.
type OrderCommitter interface {
	CommitOrder(ctx context.Context, m *domain.Materialization) error
	GetPayment(ctx context.Context, buyerID int64, txnID string) (*domain.Payment, error)
}

// CompensatingMaterializer is used when carts and orders live in different
// stores. The cart is drained first; if the order cannot be committed the
// drained lines are put back.
type CompensatingMaterializer struct {
	carts  CartDrainer
	orders OrderCommitter
	logger *zap.Logger
}

func NewCompensatingMaterializer(carts CartDrainer, orders OrderCommitter, logger *zap.Logger) *CompensatingMaterializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompensatingMaterializer{carts: carts, orders: orders, logger: logger}
}

func (c *CompensatingMaterializer) Materialize(ctx context.Context, m *domain.Materialization) error {
	drained, err := c.carts.DrainLines(ctx, m.BuyerID, m.Lines)
	if err != nil {
		return err
	}

	if err := c.orders.CommitOrder(ctx, m); err != nil {
		// The commit may have landed even though its acknowledgement was
		// lost. A paid payment means the order exists and the drain stands.
		p, gerr := c.orders.GetPayment(ctx, m.BuyerID, m.TransactionID)
		if gerr == nil && p.Status == domain.PaymentStatusPaid {
			c.logger.Warn("order commit reported an error but the payment is paid; keeping cart drained",
				zap.Int64("user_id", m.BuyerID),
				zap.String("transaction_id", m.TransactionID),
				zap.Error(err))
			return nil
		}
		if gerr != nil && !errors.Is(gerr, domain.ErrNotFound) {
			c.logger.Error("could not confirm order commit outcome; restoring cart",
				zap.Int64("user_id", m.BuyerID),
				zap.String("transaction_id", m.TransactionID),
				zap.Error(gerr))
		}
		if rerr := c.carts.RestoreLines(ctx, m.BuyerID, drained); rerr != nil {
			c.logger.Error("failed to restore drained cart lines",
				zap.Int64("user_id", m.BuyerID),
				zap.String("transaction_id", m.TransactionID),
				zap.Int("lines", len(drained)),
				zap.Error(rerr))
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}
