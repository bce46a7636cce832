package service

import (
	"context"
	"time"

	"booking-service/internal/gateway"
	"booking-service/internal/models"
)

// Catalog provides read access to showtimes, seats, combos and promotions
type Catalog interface {
	GetShowtime(ctx context.Context, id int64) (*models.Showtime, error)
	GetSeat(ctx context.Context, id int64) (*models.Seat, error)
	GetCombo(ctx context.Context, id int64) (*models.Combo, error)
	GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error)
	ListPromotionsActiveOn(ctx context.Context, day time.Time) ([]models.Promotion, error)
	FindFinishedShowtimes(ctx context.Context, date time.Time, clock string) ([]models.Showtime, error)
}

// SeatLedger records which seats are booked for which showtime
type SeatLedger interface {
	HoldSeat(ctx context.Context, showtimeID, seatID int64) (bool, error)
	ReleaseSeat(ctx context.Context, showtimeID, seatID int64) (bool, error)
	IsSeatHeld(ctx context.Context, showtimeID, seatID int64) (bool, error)
	ReleaseShowtime(ctx context.Context, showtimeID int64) (int64, error)
}

// TicketStore persists tickets
type TicketStore interface {
	CreateTickets(ctx context.Context, tickets []*models.Ticket) error
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	GetTicketsByIDs(ctx context.Context, ids []int64) ([]models.Ticket, error)
	ListTicketsByCustomer(ctx context.Context, customerID int64) ([]models.Ticket, error)
	CancelTicket(ctx context.Context, id int64, from []string) (bool, error)
	TransitionTicket(ctx context.Context, id int64, from, to string) (bool, error)
}

// PaymentStore persists payments and applies settlements atomically
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	RecordGatewayResponse(ctx context.Context, paymentID int64, paymentURL string, resultCode int, message string) error
	MarkPaymentFailed(ctx context.Context, paymentID int64, resultCode *int, message string) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	ListPaymentsByCustomer(ctx context.Context, customerID int64) ([]models.Payment, error)
	SettlePayment(ctx context.Context, st models.Settlement) (*models.Payment, bool, error)
	ExpirePendingPayments(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishTicketsBooked(ctx context.Context, event *models.TicketsBookedEvent) error
	PublishTicketCancelled(ctx context.Context, event *models.TicketCancelledEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishSeatsReclaimed(ctx context.Context, event *models.SeatsReclaimedEvent) error
}

// Gateway opens payment intents and authenticates notifications
type Gateway interface {
	CreatePayment(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResponse, error)
	VerifyCallback(cb *models.GatewayCallback) bool
}

// IdempotencyCache remembers processed callbacks across replicas
type IdempotencyCache interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// Locker provides a lease-based mutual exclusion lock
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Clock returns the current time
type Clock func() time.Time
