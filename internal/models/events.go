package models

import (
	"fmt"
	"time"
)

// Event types
const (
	EventTypeTicketsBooked    = "TICKETS_BOOKED"
	EventTypeTicketCancelled  = "TICKET_CANCELLED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypeSeatsReclaimed   = "SEATS_RECLAIMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketsBookedEvent published when a booking creates PENDING tickets
type TicketsBookedEvent struct {
	BaseEvent
	ShowtimeID  int64   `json:"showtime_id"`
	CustomerID  int64   `json:"customer_id"`
	TicketIDs   []int64 `json:"ticket_ids"`
	SeatIDs     []int64 `json:"seat_ids"`
	TotalAmount int64   `json:"total_amount"`
}

// TicketCancelledEvent published when a ticket is cancelled
type TicketCancelledEvent struct {
	BaseEvent
	TicketID    int64  `json:"ticket_id"`
	ShowtimeID  int64  `json:"showtime_id"`
	SeatID      int64  `json:"seat_id"`
	CancelledBy int64  `json:"cancelled_by"`
	PrevStatus  string `json:"prev_status"`
}

// PaymentCompletedEvent published when a gateway callback settles a payment
type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID int64   `json:"payment_id"`
	OrderID   string  `json:"order_id"`
	Amount    int64   `json:"amount"`
	TransID   string  `json:"trans_id"`
	TicketIDs []int64 `json:"ticket_ids"`
}

// PaymentFailedEvent published when a payment attempt fails
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID  int64   `json:"payment_id"`
	OrderID    string  `json:"order_id"`
	ResultCode int     `json:"result_code"`
	Reason     string  `json:"reason"`
	TicketIDs  []int64 `json:"ticket_ids"`
}

// SeatsReclaimedEvent published after a reclamation sweep
type SeatsReclaimedEvent struct {
	BaseEvent
	ShowtimeIDs []int64 `json:"showtime_ids"`
	SeatsReset  int64   `json:"seats_reset"`
}

// GatewayCallback is the asynchronous notification sent by the payment gateway.
// It is also the payload of messages relayed onto the callback topic.
type GatewayCallback struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId" binding:"required"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// DedupKey identifies one distinct notification for an order
func (c *GatewayCallback) DedupKey() string {
	return fmt.Sprintf("callback:%s:%d:%d", c.OrderID, c.TransID, c.ResultCode)
}

// SeatLabel formats a row and column as a seat label
func SeatLabel(row string, column int) string {
	return fmt.Sprintf("%s%d", row, column)
}
