package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var validCard = domain.PaymentMethod{
	Kind:           domain.PaymentKindCard,
	CardholderName: "Asha Rao",
	CardNumber:     "4111 1111 1111 1111",
	Expiry:         "12/30",
	CVV:            "123",
}

var amount = decimal.RequireFromString("68.97")

type fixedDecider Outcome

func (f fixedDecider) Decide(decimal.Decimal, domain.PaymentMethod) Outcome { return Outcome(f) }

// scriptedGateway replays outcomes in order and counts calls.
type scriptedGateway struct {
	outcomes []Outcome
	err      error
	calls    int
}

func (g *scriptedGateway) AttemptSettlement(context.Context, decimal.Decimal, domain.PaymentMethod) (Outcome, error) {
	g.calls++
	if g.err != nil {
		return OutcomeDeclined, g.err
	}
	o := g.outcomes[0]
	if len(g.outcomes) > 1 {
		g.outcomes = g.outcomes[1:]
	}
	return o, nil
}

func TestSimulated_ApprovesValidPayload(t *testing.T) {
	gw := NewSimulated(nil, 0)

	outcome, err := gw.AttemptSettlement(context.Background(), amount, validCard)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)
}

func TestSimulated_DeclinesIncompletePayload(t *testing.T) {
	gw := NewSimulated(nil, 0)
	card := validCard
	card.CVV = ""

	outcome, err := gw.AttemptSettlement(context.Background(), amount, card)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, outcome)
}

func TestSimulated_UsesDecider(t *testing.T) {
	gw := NewSimulated(fixedDecider(OutcomeDeclined), 0)

	outcome, err := gw.AttemptSettlement(context.Background(), amount, validCard)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, outcome)
}

func TestSimulated_DeadlineIsTimeout(t *testing.T) {
	gw := NewSimulated(nil, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome, err := gw.AttemptSettlement(ctx, amount, validCard)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSimulated_CancelIsError(t *testing.T) {
	gw := NewSimulated(nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gw.AttemptSettlement(ctx, amount, validCard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRandomDecider_Bounds(t *testing.T) {
	always := NewRandomDecider(100, 1)
	never := NewRandomDecider(0, 1)
	for i := 0; i < 50; i++ {
		assert.Equal(t, OutcomePaid, always.Decide(amount, validCard))
		assert.Equal(t, OutcomeDeclined, never.Decide(amount, validCard))
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "paid", OutcomePaid.String())
	assert.Equal(t, "declined", OutcomeDeclined.String())
	assert.Equal(t, "timed_out", OutcomeTimedOut.String())
}

func TestBreaker_PassesThroughOutcomes(t *testing.T) {
	gw := &scriptedGateway{outcomes: []Outcome{OutcomePaid, OutcomeDeclined, OutcomeTimedOut}}
	b := NewBreaker(gw, BreakerConfig{ConsecutiveFailures: 5}, zap.NewNop())
	ctx := context.Background()

	for _, want := range []Outcome{OutcomePaid, OutcomeDeclined, OutcomeTimedOut} {
		got, err := b.AttemptSettlement(ctx, amount, validCard)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestBreaker_OpensAfterConsecutiveTimeouts(t *testing.T) {
	gw := &scriptedGateway{outcomes: []Outcome{OutcomeTimedOut}}
	b := NewBreaker(gw, BreakerConfig{ConsecutiveFailures: 3, OpenTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := b.AttemptSettlement(ctx, amount, validCard)
		require.NoError(t, err)
		assert.Equal(t, OutcomeTimedOut, got)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	got, err := b.AttemptSettlement(ctx, amount, validCard)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeclined, got)
	assert.Equal(t, 3, gw.calls)
}

func TestBreaker_DeclinesDoNotTrip(t *testing.T) {
	gw := &scriptedGateway{outcomes: []Outcome{OutcomeDeclined}}
	b := NewBreaker(gw, BreakerConfig{ConsecutiveFailures: 2}, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.AttemptSettlement(context.Background(), amount, validCard)
		require.NoError(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 5, gw.calls)
}

func TestBreaker_ReturnsTransportErrors(t *testing.T) {
	boom := errors.New("connection reset")
	gw := &scriptedGateway{err: boom}
	b := NewBreaker(gw, BreakerConfig{ConsecutiveFailures: 5}, zap.NewNop())

	_, err := b.AttemptSettlement(context.Background(), amount, validCard)
	assert.ErrorIs(t, err, boom)
}
