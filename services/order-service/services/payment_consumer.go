package services

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPaymentConsumer reads payment events from a Kafka topic. Offsets are
// committed only after the event was applied or deliberately dropped.
type KafkaPaymentConsumer struct {
	reader     MessageReader
	handler    *PaymentEventHandler
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewKafkaPaymentConsumer(brokers []string, topic, groupID string, handler *PaymentEventHandler, logger *zap.Logger) *KafkaPaymentConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewKafkaPaymentConsumerWithReader(r, handler, logger.With(zap.String("topic", topic), zap.String("group", groupID)))
}

func NewKafkaPaymentConsumerWithReader(r MessageReader, handler *PaymentEventHandler, logger *zap.Logger) *KafkaPaymentConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPaymentConsumer{reader: r, handler: handler, logger: logger, retryDelay: time.Second}
}

// Start blocks until ctx is cancelled or the reader is closed.
func (pc *KafkaPaymentConsumer) Start(ctx context.Context) {
	pc.logger.Info("payment events topic consumer starting")
	for {
		m, err := pc.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			pc.logger.Error("kafka fetch failed", zap.Error(err))
			return
		}

		if err := pc.apply(ctx, m); err != nil {
			return
		}
		if err := pc.reader.CommitMessages(ctx, m); err != nil {
			pc.logger.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// apply retries a failing event until it succeeds or ctx ends, so a
// transient order-store outage does not skip a payment.
func (pc *KafkaPaymentConsumer) apply(ctx context.Context, m kafka.Message) error {
	for {
		err := pc.handler.HandleRaw(ctx, m.Value)
		if err == nil {
			return nil
		}
		pc.logger.Warn("payment event failed, retrying", zap.Int64("offset", m.Offset), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pc.retryDelay):
		}
	}
}

func (pc *KafkaPaymentConsumer) Close() error {
	return pc.reader.Close()
}
