package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	*fixture
	gw         *mocks.MockGateway
	cache      *mapCache
	reconciler *PaymentReconciler
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	f := newFixture(t)
	gw := &mocks.MockGateway{}
	cache := newMapCache()
	return &paymentFixture{
		fixture: f,
		gw:      gw,
		cache:   cache,
		reconciler: NewPaymentReconciler(f.store, f.store, gw, f.events, cache,
			ReconcilerConfig{DefaultReturnURL: "http://localhost:3000/payment/result"},
			fixedClock("2026-03-10 10:00:00")),
	}
}

// openIntent books seats for customer and opens an accepted payment for them
func (pf *paymentFixture) openIntent(t *testing.T, seatIDs ...int64) (*PaymentIntent, []models.Ticket) {
	t.Helper()
	tickets := pf.book(t, customer, seatIDs...)
	ids := make([]int64, len(tickets))
	for i, ticket := range tickets {
		ids[i] = ticket.ID
	}

	pf.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(&gateway.CreateResponse{ResultCode: 0, Message: "Successful.", PayURL: "https://pay.example/checkout"}, nil).Once()

	intent, err := pf.reconciler.CreateIntent(context.Background(), customer, &CreateIntentRequest{TicketIDs: ids})
	require.NoError(t, err)
	return intent, tickets
}

func callbackFor(intent *PaymentIntent, resultCode int) *models.GatewayCallback {
	return &models.GatewayCallback{
		OrderID:    intent.OrderID,
		Amount:     intent.Amount,
		TransID:    4088878653,
		ResultCode: resultCode,
		Message:    "Successful.",
		Signature:  "sig",
	}
}

func TestCreateIntent(t *testing.T) {
	pf := newPaymentFixture(t)

	intent, tickets := pf.openIntent(t, 1, 2)

	assert.Equal(t, tickets[0].Price+tickets[1].Price, intent.Amount)
	assert.Equal(t, "https://pay.example/checkout", intent.PaymentURL)
	assert.Regexp(t, `^ORDER_\d+_[0-9a-f]{8}$`, intent.OrderID)

	payment, err := pf.reconciler.GetByOrderID(context.Background(), intent.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Equal(t, intent.Amount, payment.Amount)
	assert.ElementsMatch(t, []int64{tickets[0].ID, tickets[1].ID}, payment.TicketIDs)

	pf.gw.AssertCalled(t, "CreatePayment", mock.Anything, mock.MatchedBy(func(req gateway.CreateRequest) bool {
		return req.OrderID == intent.OrderID && req.Amount == intent.Amount &&
			req.RedirectURL == "http://localhost:3000/payment/result"
	}))
}

func TestCreateIntentGatewayRejected(t *testing.T) {
	pf := newPaymentFixture(t)
	ctx := context.Background()
	ticket := pf.book(t, customer, 1)[0]

	pf.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(&gateway.CreateResponse{ResultCode: 1005, Message: "Invalid amount"}, nil).Once()

	_, err := pf.reconciler.CreateIntent(ctx, customer, &CreateIntentRequest{TicketIDs: []int64{ticket.ID}})
	requireCode(t, err, apperr.CodeGatewayRejected)

	payments, err := pf.reconciler.MyPayments(ctx, customer)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusFailed, payments[0].Status)

	got, err := pf.store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusPending, got.Status)
	assert.Equal(t, models.SeatStatusBooked, pf.store.SeatHoldStatus(100, 1))

	// the customer may retry
	pf.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(&gateway.CreateResponse{ResultCode: 0, PayURL: "https://pay.example/retry"}, nil).Once()
	intent, err := pf.reconciler.CreateIntent(ctx, customer, &CreateIntentRequest{TicketIDs: []int64{ticket.ID}})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/retry", intent.PaymentURL)
}

func TestCreateIntentGatewayUnreachable(t *testing.T) {
	pf := newPaymentFixture(t)
	ticket := pf.book(t, customer, 1)[0]

	pf.gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded).Once()

	_, err := pf.reconciler.CreateIntent(context.Background(), customer, &CreateIntentRequest{TicketIDs: []int64{ticket.ID}})
	requireCode(t, err, apperr.CodeGatewayUnreachable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	got, _ := pf.store.GetTicket(context.Background(), ticket.ID)
	assert.Equal(t, models.TicketStatusPending, got.Status)
}

func TestCreateIntentRejectsUnpayableTickets(t *testing.T) {
	pf := newPaymentFixture(t)
	ctx := context.Background()

	intent, tickets := pf.openIntent(t, 1)
	require.NotNil(t, intent)

	_, err := pf.reconciler.CreateIntent(ctx, customer, &CreateIntentRequest{TicketIDs: []int64{tickets[0].ID}})
	requireCode(t, err, apperr.CodeTicketNotPayable)

	other := pf.book(t, stranger, 2)[0]
	_, err = pf.reconciler.CreateIntent(ctx, customer, &CreateIntentRequest{TicketIDs: []int64{other.ID}})
	requireCode(t, err, apperr.CodeTicketNotPayable)

	_, err = pf.reconciler.CreateIntent(ctx, customer, &CreateIntentRequest{TicketIDs: []int64{999}})
	requireCode(t, err, apperr.CodeTicketNotFound)

	pf.gw.AssertNumberOfCalls(t, "CreatePayment", 1)
}

func TestCreateIntentConcurrentRequestsOpenOnePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.book(t, customer, 1)[0]

	gw := &mocks.MockGateway{}
	gw.On("CreatePayment", mock.Anything, mock.Anything).
		Return(&gateway.CreateResponse{ResultCode: 0, PayURL: "https://pay.example/checkout"}, nil)

	// both requests pass the ticket checks before either payment is stored
	tickets := newBarrierTickets(f.store, 2)
	r := NewPaymentReconciler(tickets, f.store, gw, f.events, nil, ReconcilerConfig{}, fixedClock("2026-03-10 10:00:00"))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.CreateIntent(ctx, customer, &CreateIntentRequest{TicketIDs: []int64{ticket.ID}})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		requireCode(t, err, apperr.CodeTicketNotPayable)
	}
	assert.Equal(t, 1, created)
	gw.AssertNumberOfCalls(t, "CreatePayment", 1)

	payments, err := r.MyPayments(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestCancelBlockedWhilePaymentPending(t *testing.T) {
	pf := newPaymentFixture(t)
	ctx := context.Background()
	intent, tickets := pf.openIntent(t, 1)

	_, err := pf.booking.CancelTicket(ctx, customer, tickets[0].ID)
	requireCode(t, err, apperr.CodeInvalidTicketState)
	assert.Equal(t, models.SeatStatusBooked, pf.store.SeatHoldStatus(100, 1))

	got, _ := pf.store.GetTicket(ctx, tickets[0].ID)
	assert.Equal(t, models.TicketStatusPending, got.Status)

	_, err = pf.reconciler.ExpireStale(ctx, -time.Minute)
	require.NoError(t, err)

	cancelled, err := pf.booking.CancelTicket(ctx, customer, tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusCancelled, cancelled.Status)
	assert.Equal(t, models.SeatStatusAvailable, pf.store.SeatHoldStatus(100, 1))

	pf.gw.On("VerifyCallback", mock.Anything).Return(true)
	late, err := pf.reconciler.ApplyCallback(ctx, callbackFor(intent, 0))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, late.Status)
}

func TestApplyCallbackSuccessIsIdempotent(t *testing.T) {
	pf := newPaymentFixture(t)
	ctx := context.Background()
	intent, tickets := pf.openIntent(t, 1, 2)
	pf.gw.On("VerifyCallback", mock.Anything).Return(true)

	cb := callbackFor(intent, 0)
	first, err := pf.reconciler.ApplyCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, first.Status)
	assert.Equal(t, "4088878653", first.TransID)

	second, err := pf.reconciler.ApplyCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)

	for _, ticket := range tickets {
		got, err := pf.store.GetTicket(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TicketStatusPaid, got.Status)
	}
	pf.events.AssertNumberOfCalls(t, "PublishPaymentCompleted", 1)

	// a contradicting late notification is acknowledged but ignored
	late, err := pf.reconciler.ApplyCallback(ctx, callbackFor(intent, 1006))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, late.Status)
	assert.Equal(t, models.SeatStatusBooked, pf.store.SeatHoldStatus(100, 1))
}

func TestApplyCallbackConcurrentDuplicates(t *testing.T) {
	pf := newPaymentFixture(t)
	intent, _ := pf.openIntent(t, 1)
	pf.gw.On("VerifyCallback", mock.Anything).Return(true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pf.reconciler.ApplyCallback(context.Background(), callbackFor(intent, 0))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pf.events.AssertNumberOfCalls(t, "PublishPaymentCompleted", 1)
}

func TestApplyCallbackFailureReleasesSeats(t *testing.T) {
	pf := newPaymentFixture(t)
	ctx := context.Background()
	intent, tickets := pf.openIntent(t, 1, 2)
	pf.gw.On("VerifyCallback", mock.Anything).Return(true)

	payment, err := pf.reconciler.ApplyCallback(ctx, callbackFor(intent, 1006))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	for _, ticket := range tickets {
		got, _ := pf.store.GetTicket(ctx, ticket.ID)
		assert.Equal(t, models.TicketStatusCancelled, got.Status)
		assert.Equal(t, models.SeatStatusAvailable, pf.store.SeatHoldStatus(100, ticket.SeatID))
	}
}

func TestApplyCallbackRejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	gw := gateway.NewClient(gateway.Config{AccessKey: "access", SecretKey: "secret", Endpoint: "http://unused"})
	r := NewPaymentReconciler(f.store, f.store, gw, f.events, nil, ReconcilerConfig{}, fixedClock("2026-03-10 10:00:00"))
	ctx := context.Background()

	ticket := f.book(t, customer, 1)[0]
	payment := &models.Payment{
		OrderID: "ORDER_1", CustomerID: customer.CustomerID, Amount: ticket.Price,
		Status: models.PaymentStatusPending, TicketIDs: []int64{ticket.ID},
	}
	require.NoError(t, f.store.CreatePayment(ctx, payment))

	cb := &models.GatewayCallback{OrderID: "ORDER_1", Amount: ticket.Price, TransID: 1, ResultCode: 0}
	cb.Signature = gw.SignCallback(cb)
	cb.ResultCode = 1006

	_, err := r.ApplyCallback(ctx, cb)
	requireCode(t, err, apperr.CodeInvalidSignature)

	got, _ := f.store.GetPaymentByOrderID(ctx, "ORDER_1")
	assert.Equal(t, models.PaymentStatusPending, got.Status)
	assert.Equal(t, models.SeatStatusBooked, f.store.SeatHoldStatus(100, 1))

	cb.ResultCode = 0
	settled, err := r.ApplyCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, settled.Status)
}

func TestApplyCallbackUnknownOrder(t *testing.T) {
	pf := newPaymentFixture(t)
	pf.gw.On("VerifyCallback", mock.Anything).Return(true)

	_, err := pf.reconciler.ApplyCallback(context.Background(), &models.GatewayCallback{OrderID: "ORDER_404"})
	requireCode(t, err, apperr.CodePaymentNotFound)

	_, err = pf.reconciler.GetByOrderID(context.Background(), "ORDER_404")
	requireCode(t, err, apperr.CodePaymentNotFound)
}

func TestApplyCallbackUnverifiedSkipsSignature(t *testing.T) {
	pf := newPaymentFixture(t)
	intent, _ := pf.openIntent(t, 1)

	payment, err := pf.reconciler.ApplyCallbackUnverified(context.Background(), callbackFor(intent, 0))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	pf.gw.AssertNotCalled(t, "VerifyCallback", mock.Anything)
}

func TestExpireStale(t *testing.T) {
	pf := newPaymentFixture(t)
	ctx := context.Background()
	intent, tickets := pf.openIntent(t, 1)

	expired, err := pf.reconciler.ExpireStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	payment, _ := pf.reconciler.GetByOrderID(ctx, intent.OrderID)
	assert.Equal(t, models.PaymentStatusExpired, payment.Status)

	got, _ := pf.store.GetTicket(ctx, tickets[0].ID)
	assert.Equal(t, models.TicketStatusPending, got.Status)

	pf.gw.On("VerifyCallback", mock.Anything).Return(true)
	late, err := pf.reconciler.ApplyCallback(ctx, callbackFor(intent, 0))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, late.Status)
}
