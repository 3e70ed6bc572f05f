package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	awspkg "github.com/yashrajoria/commerce-core/pkg/aws"
)

// MessagePoller is satisfied by awspkg.SQSConsumer.
type MessagePoller interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// SQSPaymentConsumer consumes payment events from SQS and updates order status
type SQSPaymentConsumer struct {
	poller  MessagePoller
	handler *PaymentEventHandler
	logger  *zap.Logger
}

func NewSQSPaymentConsumer(poller MessagePoller, handler *PaymentEventHandler, logger *zap.Logger) *SQSPaymentConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQSPaymentConsumer{poller: poller, handler: handler, logger: logger}
}

// Start begins polling the payment events queue and blocks until ctx ends.
func (c *SQSPaymentConsumer) Start(ctx context.Context) {
	c.logger.Info("payment events queue consumer starting")
	err := c.poller.StartPolling(ctx, c.handleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("payment events polling stopped", zap.Error(err))
	}
}

func (c *SQSPaymentConsumer) handleMessage(ctx context.Context, body string) error {
	return c.handler.HandleRaw(ctx, []byte(awspkg.UnwrapSNSEnvelope(body)))
}
