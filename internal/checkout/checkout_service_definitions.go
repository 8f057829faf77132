package checkout

import (
	"context"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/Vishal8376/Farm2Consumer/internal/settlement"
	"go.uber.org/zap"
)

type CartReader interface {
	ListLines(ctx context.Context, userID int64) ([]domain.CartLine, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type Ledger interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, buyerID int64, txnID string) (*domain.Payment, error)
	TransitionPayment(ctx context.Context, txnID string, from, to domain.PaymentStatus) error
}

type OrderReader interface {
	ListOrders(ctx context.Context, buyerID int64) ([]*domain.Order, error)
	GetOrderByPayment(ctx context.Context, buyerID int64, txnID string) (*domain.Order, error)
}

// Materializer creates the order, drains the captured cart lines and marks
// the payment paid as one unit. On error none of it may be visible.
type Materializer interface {
	Materialize(ctx context.Context, m *domain.Materialization) error
}

// CartInvalidator drops cached cart copies after a drain.
type CartInvalidator interface {
	Invalidate(userID int64)
}

// Recorder observes finished checkout attempts.
type Recorder interface {
	CheckoutFinished(outcome string, elapsed time.Duration)
}

type Deps struct {
	Carts        CartReader
	Catalog      Catalog
	Ledger       Ledger
	Orders       OrderReader
	Materializer Materializer
	Gateway      settlement.Gateway
	Invalidator  CartInvalidator
	Recorder     Recorder
	Logger       *zap.Logger
}

type Options struct {
	// SettlementTimeout bounds one gateway call
	SettlementTimeout time.Duration
	// ResolveTimeout bounds the writes that settle a pending payment; they
	// run even if the caller has gone away
	ResolveTimeout time.Duration
}

type Service struct {
	carts        CartReader
	catalog      Catalog
	ledger       Ledger
	orders       OrderReader
	materializer Materializer
	gateway      settlement.Gateway
	invalidator  CartInvalidator
	recorder     Recorder
	logger       *zap.Logger
	opts         Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.SettlementTimeout <= 0 {
		opts.SettlementTimeout = 5 * time.Second
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Invalidator == nil {
		deps.Invalidator = nopInvalidator{}
	}
	return &Service{
		carts:        deps.Carts,
		catalog:      deps.Catalog,
		ledger:       deps.Ledger,
		orders:       deps.Orders,
		materializer: deps.Materializer,
		gateway:      deps.Gateway,
		invalidator:  deps.Invalidator,
		recorder:     deps.Recorder,
		logger:       deps.Logger,
		opts:         opts,
	}
}

type nopRecorder struct{}

func (nopRecorder) CheckoutFinished(string, time.Duration) {}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(int64) {}
