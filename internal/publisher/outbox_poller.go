// Package publisher relays outbox events to Kafka and fails payments that
// were left pending by an interrupted checkout.
package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DefaultTopic = "orders.placed"

type Repository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error)
	TransitionPayment(ctx context.Context, txnID string, from, to domain.PaymentStatus) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	EventTick    time.Duration
	RecoveryTick time.Duration
	// PendingTTL is how long a payment may stay pending before it is failed.
	// Must exceed the longest a checkout can hold a payment pending.
	PendingTTL time.Duration
	BatchSize  int
}

type OutboxPoller struct {
	cfg    Config
	repo   Repository
	writer MessageWriter
	logger *zap.Logger
	now    func() time.Time
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
}

func NewOutboxPoller(repo Repository, writer MessageWriter, cfg Config, logger *zap.Logger) *OutboxPoller {
	if cfg.EventTick <= 0 {
		cfg.EventTick = time.Second
	}
	if cfg.RecoveryTick <= 0 {
		cfg.RecoveryTick = 30 * time.Second
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxPoller{
		cfg:    cfg,
		repo:   repo,
		writer: writer,
		logger: logger,
		now:    time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.cfg.EventTick)
	recoveryTicker := time.NewTicker(p.cfg.RecoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.failStalePayments(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents publishes one batch and returns how many events
// were marked processed.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.logger.Error("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("failed to mark outbox event processed",
				zap.Int64("event_id", event.ID),
				zap.Error(err))
			continue
		}
		published++
	}
	return published
}

// failStalePayments fails payments a crashed checkout never resolved.
func (p *OutboxPoller) failStalePayments(ctx context.Context) int {
	cutoff := p.now().Add(-p.cfg.PendingTTL)
	stale, err := p.repo.ListStalePending(ctx, cutoff, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("failed to list stale payments", zap.Error(err))
		return 0
	}

	failed := 0
	for _, payment := range stale {
		err := p.repo.TransitionPayment(ctx, payment.TransactionID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
		switch {
		case err == nil:
			failed++
			p.logger.Warn("failed stale pending payment",
				zap.String("transaction_id", payment.TransactionID),
				zap.Int64("buyer_id", payment.BuyerID),
				zap.Time("created_at", payment.CreatedAt))
		case errors.Is(err, domain.ErrInvalidStateTransition):
			// resolved by its checkout in the meantime
		default:
			p.logger.Error("failed to fail stale payment",
				zap.String("transaction_id", payment.TransactionID),
				zap.Error(err))
		}
	}
	return failed
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

// LogWriter stands in for Kafka when no brokers are configured.
type LogWriter struct {
	Logger *zap.Logger
}

func (w LogWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		fields := []zap.Field{zap.ByteString("key", m.Key), zap.ByteString("payload", m.Value)}
		for _, h := range m.Headers {
			fields = append(fields, zap.ByteString(h.Key, h.Value))
		}
		w.Logger.Info("event published", fields...)
	}
	return nil
}

func (LogWriter) Close() error {
	return nil
}
