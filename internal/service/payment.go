package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReconcilerConfig holds tunables of the payment reconciler
type ReconcilerConfig struct {
	DefaultReturnURL string
	CallbackDedupTTL time.Duration
}

// PaymentReconciler opens gateway payments for tickets and applies the
// gateway's asynchronous notifications exactly once per payment.
type PaymentReconciler struct {
	tickets  TicketStore
	payments PaymentStore
	gateway  Gateway
	events   EventPublisher
	cache    IdempotencyCache
	cfg      ReconcilerConfig
	now      Clock
	logger   *zap.Logger
}

// NewPaymentReconciler creates a new payment reconciler. cache may be nil.
func NewPaymentReconciler(
	tickets TicketStore,
	payments PaymentStore,
	gw Gateway,
	events EventPublisher,
	cache IdempotencyCache,
	cfg ReconcilerConfig,
	now Clock,
) *PaymentReconciler {
	if now == nil {
		now = time.Now
	}
	if cfg.CallbackDedupTTL <= 0 {
		cfg.CallbackDedupTTL = 24 * time.Hour
	}
	return &PaymentReconciler{
		tickets:  tickets,
		payments: payments,
		gateway:  gw,
		events:   events,
		cache:    cache,
		cfg:      cfg,
		now:      now,
		logger:   util.GetLogger(),
	}
}

// CreateIntentRequest represents a request to pay for tickets
type CreateIntentRequest struct {
	TicketIDs []int64 `json:"ticket_ids" binding:"required,min=1"`
	ReturnURL string  `json:"return_url,omitempty"`
}

// PaymentIntent is returned to the client to continue on the gateway
type PaymentIntent struct {
	PaymentID  int64  `json:"payment_id"`
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
	PaymentURL string `json:"payment_url"`
}

// CreateIntent opens a gateway payment for the caller's PENDING tickets.
// On gateway failure the payment is marked FAILED and the tickets stay payable.
func (r *PaymentReconciler) CreateIntent(ctx context.Context, identity models.Identity, req *CreateIntentRequest) (*PaymentIntent, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.CreateIntent")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()

	if identity.CustomerID <= 0 {
		return nil, apperr.Unauthenticated("authentication required")
	}

	tickets, err := r.payableTickets(ctx, identity, req.TicketIDs)
	if err != nil {
		return nil, err
	}

	var amount int64
	for _, t := range tickets {
		amount += t.Price
	}
	if amount <= 0 {
		return nil, apperr.Validation("payment amount must be positive")
	}

	now := r.now()
	payment := &models.Payment{
		OrderID:    fmt.Sprintf("ORDER_%d_%s", now.UnixMilli(), uuid.New().String()[:8]),
		RequestID:  uuid.New().String(),
		CustomerID: identity.CustomerID,
		Amount:     amount,
		Method:     models.PaymentMethodMomo,
		Status:     models.PaymentStatusPending,
		TicketIDs:  req.TicketIDs,
	}
	if err := r.payments.CreatePayment(ctx, payment); err != nil {
		switch {
		case errors.Is(err, store.ErrPaymentInProgress):
			return nil, apperr.Conflict(apperr.CodeTicketNotPayable, "tickets already have a payment in progress")
		case errors.Is(err, store.ErrTicketNotPayable), errors.Is(err, store.ErrNotFound):
			return nil, apperr.Conflict(apperr.CodeTicketNotPayable, "tickets changed state and can no longer be paid")
		}
		return nil, apperr.Internal(err, "failed to create payment")
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = r.cfg.DefaultReturnURL
	}

	resp, err := r.gateway.CreatePayment(ctx, gateway.CreateRequest{
		OrderID:     payment.OrderID,
		RequestID:   payment.RequestID,
		Amount:      amount,
		OrderInfo:   fmt.Sprintf("Movie tickets - %d ticket(s)", len(tickets)),
		RedirectURL: returnURL,
	})
	if err != nil {
		r.failIntent(ctx, payment, nil, "gateway unreachable: "+err.Error())
		return nil, apperr.Wrap(err, apperr.KindUpstream, apperr.CodeGatewayUnreachable, "payment gateway is unreachable")
	}

	bookkeeping := context.WithoutCancel(ctx)
	if err := r.payments.RecordGatewayResponse(bookkeeping, payment.ID, resp.PayURL, resp.ResultCode, resp.Message); err != nil {
		r.logger.Error("Failed to record gateway response", zap.String("order_id", payment.OrderID), zap.Error(err))
	}

	if resp.ResultCode != gateway.ResultCodeSuccess {
		code := resp.ResultCode
		r.failIntent(ctx, payment, &code, resp.Message)
		return nil, apperr.New(apperr.KindUpstream, apperr.CodeGatewayRejected,
			"payment gateway rejected the request: %s (code %d)", resp.Message, resp.ResultCode)
	}

	r.logger.Info("Payment intent created",
		zap.String("order_id", payment.OrderID),
		zap.Int64("customer_id", identity.CustomerID),
		zap.Int64("amount", amount))

	return &PaymentIntent{
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		Amount:     amount,
		PaymentURL: resp.PayURL,
	}, nil
}

// payableTickets loads the tickets and checks they can be paid by identity
func (r *PaymentReconciler) payableTickets(ctx context.Context, identity models.Identity, ticketIDs []int64) ([]models.Ticket, error) {
	if len(ticketIDs) == 0 {
		return nil, apperr.Validation("at least one ticket is required")
	}
	seen := make(map[int64]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		if seen[id] {
			return nil, apperr.Validation("ticket %d is listed more than once", id)
		}
		seen[id] = true
	}

	tickets, err := r.tickets.GetTicketsByIDs(ctx, ticketIDs)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load tickets")
	}
	if len(tickets) != len(ticketIDs) {
		return nil, apperr.NotFound(apperr.CodeTicketNotFound, "some tickets were not found")
	}

	for _, t := range tickets {
		if t.CustomerID != identity.CustomerID {
			return nil, apperr.Conflict(apperr.CodeTicketNotPayable, "ticket %d does not belong to you", t.ID)
		}
		if t.Status != models.TicketStatusPending {
			return nil, apperr.Conflict(apperr.CodeTicketNotPayable, "ticket %d is %s", t.ID, t.Status)
		}
	}

	return tickets, nil
}

func (r *PaymentReconciler) failIntent(ctx context.Context, payment *models.Payment, resultCode *int, message string) {
	ctx = context.WithoutCancel(ctx)
	if err := r.payments.MarkPaymentFailed(ctx, payment.ID, resultCode, message); err != nil {
		r.logger.Error("Failed to mark payment failed", zap.String("order_id", payment.OrderID), zap.Error(err))
	}

	util.PaymentFailedTotal.WithLabelValues("intent").Inc()
	r.logger.Warn("Payment intent failed",
		zap.String("order_id", payment.OrderID),
		zap.String("message", message))

	code := -1
	if resultCode != nil {
		code = *resultCode
	}
	event := &models.PaymentFailedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePaymentFailed, r.now()),
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		ResultCode: code,
		Reason:     message,
		TicketIDs:  payment.TicketIDs,
	}
	if err := r.events.PublishPaymentFailed(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
}

// ApplyCallback verifies and applies a gateway notification. Notifications for
// a payment that already reached a terminal state are acknowledged without effect.
func (r *PaymentReconciler) ApplyCallback(ctx context.Context, cb *models.GatewayCallback) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.ApplyCallback")
	defer span.End()

	if !r.gateway.VerifyCallback(cb) {
		util.CallbacksTotal.WithLabelValues("invalid_signature").Inc()
		r.logger.Warn("Rejected callback with invalid signature", zap.String("order_id", cb.OrderID))
		return nil, apperr.New(apperr.KindSecurity, apperr.CodeInvalidSignature, "invalid callback signature")
	}

	return r.apply(ctx, cb)
}

// ApplyCallbackUnverified applies a notification without checking its
// signature. It must only be reachable from test deployments.
func (r *PaymentReconciler) ApplyCallbackUnverified(ctx context.Context, cb *models.GatewayCallback) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.ApplyCallbackUnverified")
	defer span.End()

	r.logger.Warn("Applying callback without signature verification", zap.String("order_id", cb.OrderID))
	return r.apply(ctx, cb)
}

func (r *PaymentReconciler) apply(ctx context.Context, cb *models.GatewayCallback) (*models.Payment, error) {
	start := time.Now()
	defer func() {
		util.CallbackProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	dedupKey := cb.DedupKey()
	if r.cache != nil {
		seen, err := r.cache.CheckIdempotencyKey(ctx, dedupKey)
		if err != nil {
			r.logger.Warn("Idempotency cache unavailable", zap.Error(err))
		} else if seen {
			util.CallbacksTotal.WithLabelValues("duplicate").Inc()
			return r.GetByOrderID(ctx, cb.OrderID)
		}
	}

	payment, applied, err := r.payments.SettlePayment(ctx, models.Settlement{
		OrderID:    cb.OrderID,
		Success:    cb.ResultCode == gateway.ResultCodeSuccess,
		TransID:    strconv.FormatInt(cb.TransID, 10),
		ResultCode: cb.ResultCode,
		Message:    cb.Message,
	})
	if errors.Is(err, store.ErrNotFound) {
		util.CallbacksTotal.WithLabelValues("unknown_order").Inc()
		return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment %s not found", cb.OrderID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to settle payment %s", cb.OrderID)
	}

	if !applied {
		util.CallbacksTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("Callback for settled payment ignored",
			zap.String("order_id", cb.OrderID),
			zap.String("status", payment.Status))
		return payment, nil
	}

	if r.cache != nil {
		if err := r.cache.SetIdempotencyKey(ctx, dedupKey, payment.Status, r.cfg.CallbackDedupTTL); err != nil {
			r.logger.Warn("Failed to store callback idempotency key", zap.Error(err))
		}
	}

	if payment.Status == models.PaymentStatusCompleted {
		util.CallbacksTotal.WithLabelValues("completed").Inc()
		util.PaymentSuccessTotal.Inc()
		r.logger.Info("Payment completed",
			zap.String("order_id", payment.OrderID),
			zap.String("trans_id", payment.TransID),
			zap.Int64s("ticket_ids", payment.TicketIDs))

		event := &models.PaymentCompletedEvent{
			BaseEvent: newBaseEvent(models.EventTypePaymentCompleted, r.now()),
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			Amount:    payment.Amount,
			TransID:   payment.TransID,
			TicketIDs: payment.TicketIDs,
		}
		if err := r.events.PublishPaymentCompleted(ctx, event); err != nil {
			r.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
		}
		return payment, nil
	}

	util.CallbacksTotal.WithLabelValues("failed").Inc()
	util.PaymentFailedTotal.WithLabelValues("callback").Inc()
	r.logger.Warn("Payment failed, tickets cancelled",
		zap.String("order_id", payment.OrderID),
		zap.Int("result_code", cb.ResultCode),
		zap.String("message", cb.Message))

	event := &models.PaymentFailedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePaymentFailed, r.now()),
		PaymentID:  payment.ID,
		OrderID:    payment.OrderID,
		ResultCode: cb.ResultCode,
		Reason:     cb.Message,
		TicketIDs:  payment.TicketIDs,
	}
	if err := r.events.PublishPaymentFailed(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
	return payment, nil
}

// GetByOrderID returns the current state of a payment
func (r *PaymentReconciler) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	payment, err := r.payments.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, lookupError(err, apperr.CodePaymentNotFound, "payment %s not found", orderID)
	}
	return payment, nil
}

// MyPayments lists the caller's payments, newest first
func (r *PaymentReconciler) MyPayments(ctx context.Context, identity models.Identity) ([]models.Payment, error) {
	payments, err := r.payments.ListPaymentsByCustomer(ctx, identity.CustomerID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list payments")
	}
	return payments, nil
}

// ExpireStale expires PENDING payments older than ttl so late callbacks
// cannot settle them. Their tickets stay PENDING and can be paid again.
func (r *PaymentReconciler) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.ExpireStale")
	defer span.End()

	expired, err := r.payments.ExpirePendingPayments(ctx, r.now().Add(-ttl))
	if err != nil {
		return 0, apperr.Internal(err, "failed to expire payments")
	}
	if expired > 0 {
		util.PaymentsExpiredTotal.Add(float64(expired))
		r.logger.Info("Expired stale payment intents", zap.Int64("count", expired))
	}
	return expired, nil
}
