package worker

import (
	"context"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// CallbackApplier settles a gateway notification
type CallbackApplier interface {
	ApplyCallback(ctx context.Context, cb *models.GatewayCallback) (*models.Payment, error)
}

// CallbackWorker applies gateway callbacks relayed through Kafka
type CallbackWorker struct {
	consumer   *broker.Consumer
	handler    *broker.CallbackHandler
	reconciler CallbackApplier
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewCallbackWorker creates a new callback worker
func NewCallbackWorker(consumer *broker.Consumer, reconciler CallbackApplier) *CallbackWorker {
	w := &CallbackWorker{
		consumer:   consumer,
		reconciler: reconciler,
		attempts:   3,
		backoff:    500 * time.Millisecond,
		logger:     util.GetLogger(),
	}
	w.handler = broker.NewCallbackHandler(w.apply)
	return w
}

// Start starts the worker
func (w *CallbackWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting callback worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *CallbackWorker) Stop() error {
	w.logger.Info("Stopping callback worker")
	return w.consumer.Close()
}

// apply settles one callback. Rejections (bad signature, unknown order) are
// final and acknowledged; internal failures are retried with backoff.
func (w *CallbackWorker) apply(ctx context.Context, cb *models.GatewayCallback) error {
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		var payment *models.Payment
		payment, err = w.reconciler.ApplyCallback(ctx, cb)
		if err == nil {
			w.logger.Info("Applied queued callback",
				zap.String("order_id", cb.OrderID),
				zap.String("status", payment.Status))
			return nil
		}

		if apperr.KindOf(err) != apperr.KindInternal {
			w.logger.Warn("Rejected queued callback",
				zap.String("order_id", cb.OrderID),
				zap.String("code", apperr.CodeOf(err)),
				zap.Error(err))
			return nil
		}

		w.logger.Error("Failed to apply queued callback",
			zap.String("order_id", cb.OrderID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff * time.Duration(attempt)):
		}
	}
	return err
}
