package models

import "time"

// Seat represents a physical seat in a screening room
type Seat struct {
	ID              int64     `db:"id" json:"id"`
	RoomID          int64     `db:"room_id" json:"room_id"`
	RowLabel        string    `db:"row_label" json:"row_label"`
	ColumnNumber    int       `db:"column_number" json:"column_number"`
	SeatType        string    `db:"seat_type" json:"seat_type"`
	PriceMultiplier float64   `db:"price_multiplier" json:"price_multiplier"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Label returns the row+column label, e.g. "A7"
func (s *Seat) Label() string {
	return SeatLabel(s.RowLabel, s.ColumnNumber)
}

// Showtime represents a screening of a movie in a room
type Showtime struct {
	ID        int64     `db:"id" json:"id"`
	MovieID   int64     `db:"movie_id" json:"movie_id"`
	RoomID    int64     `db:"room_id" json:"room_id"`
	Date      time.Time `db:"showtime_date" json:"date"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	BasePrice int64     `db:"base_price" json:"base_price"`
}

// SeatHold is the per-showtime booking state of a seat
type SeatHold struct {
	ShowtimeID int64     `db:"showtime_id" json:"showtime_id"`
	SeatID     int64     `db:"seat_id" json:"seat_id"`
	Status     string    `db:"status" json:"status"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Combo is a bundled add-on sold with tickets
type Combo struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Price int64  `db:"price" json:"price"`
}

// Promotion is a date-bounded percentage discount
type Promotion struct {
	ID              int64     `db:"id" json:"id"`
	Code            string    `db:"code" json:"code"`
	Name            string    `db:"name" json:"name"`
	DiscountPercent float64   `db:"discount_percent" json:"discount_percent"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
}

// Ticket is one seat sold for one showtime
type Ticket struct {
	ID          int64     `db:"id" json:"id"`
	SeatID      int64     `db:"seat_id" json:"seat_id"`
	ShowtimeID  int64     `db:"showtime_id" json:"showtime_id"`
	CustomerID  int64     `db:"customer_id" json:"customer_id"`
	Price       int64     `db:"price" json:"price"`
	Status      string    `db:"status" json:"status"`
	BookingDate time.Time `db:"booking_date" json:"booking_date"`
	ComboIDs    []int64   `db:"-" json:"combo_ids,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Payment tracks one gateway payment attempt for a set of tickets
type Payment struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    string    `db:"order_id" json:"order_id"`
	RequestID  string    `db:"request_id" json:"request_id"`
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Amount     int64     `db:"amount" json:"amount"`
	Method     string    `db:"method" json:"method"`
	Status     string    `db:"status" json:"status"`
	TransID    string    `db:"trans_id" json:"trans_id,omitempty"`
	ResultCode *int      `db:"result_code" json:"result_code,omitempty"`
	Message    string    `db:"message" json:"message,omitempty"`
	PaymentURL string    `db:"payment_url" json:"payment_url,omitempty"`
	TicketIDs  []int64   `db:"-" json:"ticket_ids"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the payment has reached a final state
func (p *Payment) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}

// Settlement is the outcome of a gateway notification applied to a payment
type Settlement struct {
	OrderID    string
	Success    bool
	TransID    string
	ResultCode int
	Message    string
}

// Identity is the authenticated caller of an operation
type Identity struct {
	CustomerID int64
	Role       string
}

// IsAdmin reports whether the caller has the admin role
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Seat types
const (
	SeatTypeStandard = "STANDARD"
	SeatTypeVIP      = "VIP"
	SeatTypeCouple   = "COUPLE"
	SeatTypePremium  = "PREMIUM"
)

// Seat statuses. AVAILABLE and BOOKED are also the two states of a SeatHold.
const (
	SeatStatusAvailable   = "AVAILABLE"
	SeatStatusBooked      = "BOOKED"
	SeatStatusMaintenance = "MAINTENANCE"
	SeatStatusDisabled    = "DISABLED"
)

// Ticket statuses
const (
	TicketStatusPending   = "PENDING"
	TicketStatusPaid      = "PAID"
	TicketStatusCancelled = "CANCELLED"
	TicketStatusUsed      = "USED"
)

// Payment statuses
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
	PaymentStatusExpired   = "EXPIRED"
)

const PaymentMethodMomo = "MOMO"

// Roles
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Date and time-of-day layouts used by showtimes and promotions
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)
