// Package settlement simulates the payment gateway a checkout settles
// against. No money moves; outcomes are decided locally.
package settlement

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/shopspring/decimal"
)

type Outcome int

const (
	OutcomePaid Outcome = iota
	OutcomeDeclined
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaid:
		return "paid"
	case OutcomeDeclined:
		return "declined"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

type Gateway interface {
	AttemptSettlement(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod) (Outcome, error)
}

// Decider picks the outcome of a simulated settlement.
type Decider interface {
	Decide(amount decimal.Decimal, method domain.PaymentMethod) Outcome
}

// AlwaysApprove settles every well-formed payload.
type AlwaysApprove struct{}

func (AlwaysApprove) Decide(decimal.Decimal, domain.PaymentMethod) Outcome {
	return OutcomePaid
}

// RandomDecider approves ApprovalPercent of attempts and declines the rest.
type RandomDecider struct {
	ApprovalPercent int

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomDecider(approvalPercent int, seed int64) *RandomDecider {
	return &RandomDecider{ApprovalPercent: approvalPercent, rnd: rand.New(rand.NewSource(seed))}
}

func (r *RandomDecider) Decide(decimal.Decimal, domain.PaymentMethod) Outcome {
	r.mu.Lock()
	n := r.rnd.Intn(100)
	r.mu.Unlock()
	if n < r.ApprovalPercent {
		return OutcomePaid
	}
	return OutcomeDeclined
}

// Simulated is the in-process gateway. Latency is waited out unless the
// context ends first, in which case the attempt timed out.
type Simulated struct {
	decider Decider
	latency time.Duration
}

func NewSimulated(decider Decider, latency time.Duration) *Simulated {
	if decider == nil {
		decider = AlwaysApprove{}
	}
	return &Simulated{decider: decider, latency: latency}
}

func (s *Simulated) AttemptSettlement(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod) (Outcome, error) {
	if len(method.MissingFields()) > 0 || amount.IsNegative() {
		return OutcomeDeclined, nil
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return timeoutOrCancel(ctx.Err())
		}
	} else if err := ctx.Err(); err != nil {
		return timeoutOrCancel(err)
	}

	return s.decider.Decide(amount, method), nil
}

func timeoutOrCancel(err error) (Outcome, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimedOut, nil
	}
	return OutcomeDeclined, err
}
