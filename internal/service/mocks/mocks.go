package mocks

import (
	"context"

	"booking-service/internal/gateway"
	"booking-service/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of the payment gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePayment(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CreateResponse), args.Error(1)
}

func (m *MockGateway) VerifyCallback(cb *models.GatewayCallback) bool {
	args := m.Called(cb)
	return args.Bool(0)
}

// MockEventPublisher is a mock implementation of the event publisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishTicketsBooked(ctx context.Context, event *models.TicketsBookedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishTicketCancelled(ctx context.Context, event *models.TicketCancelledEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishSeatsReclaimed(ctx context.Context, event *models.SeatsReclaimedEvent) error {
	return m.Called(ctx, event).Error(0)
}

// NewPermissivePublisher returns a publisher that accepts every event
func NewPermissivePublisher() *MockEventPublisher {
	m := &MockEventPublisher{}
	m.On("PublishTicketsBooked", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishTicketCancelled", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishPaymentCompleted", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishPaymentFailed", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishSeatsReclaimed", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}
