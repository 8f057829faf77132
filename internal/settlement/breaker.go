package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var errAttemptTimedOut = errors.New("settlement attempt timed out")

type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing
	OpenTimeout time.Duration
	// HalfOpenRequests is how many probes are let through when half open
	HalfOpenRequests uint32
}

// Breaker guards a gateway with a circuit breaker. Timeouts and transport
// errors count as failures; declines are valid answers. While the circuit
// is open every attempt is declined without reaching the gateway.
type Breaker struct {
	next   Gateway
	cb     *gobreaker.CircuitBreaker[Outcome]
	logger *zap.Logger
}

func NewBreaker(next Gateway, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        "settlement",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Breaker{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker[Outcome](settings),
		logger: logger,
	}
}

func (b *Breaker) AttemptSettlement(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod) (Outcome, error) {
	outcome, err := b.cb.Execute(func() (Outcome, error) {
		o, err := b.next.AttemptSettlement(ctx, amount, method)
		if err != nil {
			return o, err
		}
		if o == OutcomeTimedOut {
			return o, errAttemptTimedOut
		}
		return o, nil
	})

	switch {
	case err == nil:
		return outcome, nil
	case errors.Is(err, errAttemptTimedOut):
		return OutcomeTimedOut, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.logger.Info("settlement rejected by open circuit", zap.Error(err))
		return OutcomeDeclined, nil
	default:
		return outcome, err
	}
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
