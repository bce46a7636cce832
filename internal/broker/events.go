package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishTicketsBooked publishes TicketsBooked event
func (ep *EventPublisher) PublishTicketsBooked(ctx context.Context, event *models.TicketsBookedEvent) error {
	key := fmt.Sprintf("showtime-%d", event.ShowtimeID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishTicketCancelled publishes TicketCancelled event
func (ep *EventPublisher) PublishTicketCancelled(ctx context.Context, event *models.TicketCancelledEvent) error {
	key := fmt.Sprintf("showtime-%d", event.ShowtimeID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentCompleted publishes PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSeatsReclaimed publishes SeatsReclaimed event
func (ep *EventPublisher) PublishSeatsReclaimed(ctx context.Context, event *models.SeatsReclaimedEvent) error {
	return ep.producer.PublishEvent(ctx, "reclamation", event)
}

// CallbackRelay queues gateway notifications for asynchronous settlement
type CallbackRelay struct {
	producer *Producer
}

// NewCallbackRelay creates a relay writing to the callback topic
func NewCallbackRelay(producer *Producer) *CallbackRelay {
	return &CallbackRelay{producer: producer}
}

// Enqueue publishes a callback keyed by order so notifications for one
// order are consumed in order
func (r *CallbackRelay) Enqueue(ctx context.Context, cb *models.GatewayCallback) error {
	return r.producer.PublishEvent(ctx, "order-"+cb.OrderID, cb)
}

// CallbackHandler decodes queued gateway callbacks
type CallbackHandler struct {
	apply func(context.Context, *models.GatewayCallback) error
}

// NewCallbackHandler creates a handler that passes each decoded callback to apply
func NewCallbackHandler(apply func(context.Context, *models.GatewayCallback) error) *CallbackHandler {
	return &CallbackHandler{apply: apply}
}

// HandleMessage decodes a message and applies it. Undecodable messages are
// logged and dropped so they do not block the partition.
func (h *CallbackHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var cb models.GatewayCallback
	if err := json.Unmarshal(msg.Value, &cb); err != nil || cb.OrderID == "" {
		util.GetLogger().Warn("Dropping malformed callback message",
			zap.ByteString("key", msg.Key),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	return h.apply(ctx, &cb)
}

// LogPublisher writes domain events to the log. It is used when Kafka is disabled.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a new log publisher
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: util.GetLogger()}
}

func (lp *LogPublisher) log(event interface{}, base models.BaseEvent) error {
	lp.logger.Info("Domain event",
		zap.String("event_type", base.EventType),
		zap.String("event_id", base.EventID),
		zap.Any("event", event))
	return nil
}

func (lp *LogPublisher) PublishTicketsBooked(ctx context.Context, event *models.TicketsBookedEvent) error {
	return lp.log(event, event.BaseEvent)
}

func (lp *LogPublisher) PublishTicketCancelled(ctx context.Context, event *models.TicketCancelledEvent) error {
	return lp.log(event, event.BaseEvent)
}

func (lp *LogPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return lp.log(event, event.BaseEvent)
}

func (lp *LogPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return lp.log(event, event.BaseEvent)
}

func (lp *LogPublisher) PublishSeatsReclaimed(ctx context.Context, event *models.SeatsReclaimedEvent) error {
	return lp.log(event, event.BaseEvent)
}
