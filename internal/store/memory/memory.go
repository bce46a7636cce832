// Package memory is a process-local implementation of the booking stores.
// Every operation runs under one mutex, which gives the same atomicity as the
// transactional Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/store"
)

type holdKey struct {
	showtimeID int64
	seatID     int64
}

// Store keeps catalog, seat holds, tickets and payments in memory
type Store struct {
	mu sync.Mutex

	showtimes  map[int64]models.Showtime
	seats      map[int64]models.Seat
	combos     map[int64]models.Combo
	promotions map[string]models.Promotion
	holds      map[holdKey]string
	tickets    map[int64]models.Ticket
	payments   map[string]models.Payment

	nextTicketID  int64
	nextPaymentID int64
	now           func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		showtimes:  make(map[int64]models.Showtime),
		seats:      make(map[int64]models.Seat),
		combos:     make(map[int64]models.Combo),
		promotions: make(map[string]models.Promotion),
		holds:      make(map[holdKey]string),
		tickets:    make(map[int64]models.Ticket),
		payments:   make(map[string]models.Payment),
		now:        time.Now,
	}
}

// SetClock overrides the clock used for record timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// AddShowtime inserts or replaces a showtime
func (s *Store) AddShowtime(st models.Showtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showtimes[st.ID] = st
}

// AddSeat inserts or replaces a seat
func (s *Store) AddSeat(seat models.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seat.Status == "" {
		seat.Status = models.SeatStatusAvailable
	}
	s.seats[seat.ID] = seat
}

// AddCombo inserts or replaces a combo
func (s *Store) AddCombo(c models.Combo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.combos[c.ID] = c
}

// AddPromotion inserts or replaces a promotion
func (s *Store) AddPromotion(p models.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions[p.Code] = p
}

// SeatHoldStatus returns the hold status of a seat for a showtime
func (s *Store) SeatHoldStatus(showtimeID, seatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.holds[holdKey{showtimeID, seatID}]; ok {
		return status
	}
	return models.SeatStatusAvailable
}

func (s *Store) GetShowtime(ctx context.Context, id int64) (*models.Showtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.showtimes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

func (s *Store) GetSeat(ctx context.Context, id int64) (*models.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.seats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &seat, nil
}

func (s *Store) GetCombo(ctx context.Context, id int64) (*models.Combo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.combos[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPromotionsActiveOn(ctx context.Context, day time.Time) ([]models.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := day.Format(models.DateLayout)
	out := []models.Promotion{}
	for _, p := range s.promotions {
		if p.StartDate.Format(models.DateLayout) <= d && d <= p.EndDate.Format(models.DateLayout) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) FindFinishedShowtimes(ctx context.Context, date time.Time, clock string) ([]models.Showtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := date.Format(models.DateLayout)
	out := []models.Showtime{}
	for _, st := range s.showtimes {
		if st.Date.Format(models.DateLayout) == d && st.EndTime <= clock {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) HoldSeat(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, ok := s.seats[seatID]
	if !ok {
		return false, store.ErrNotFound
	}
	if seat.Status != models.SeatStatusAvailable {
		return false, nil
	}

	key := holdKey{showtimeID, seatID}
	if s.holds[key] == models.SeatStatusBooked {
		return false, nil
	}
	s.holds[key] = models.SeatStatusBooked
	return true, nil
}

func (s *Store) ReleaseSeat(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seats[seatID]; !ok {
		return false, store.ErrNotFound
	}
	return s.releaseLocked(showtimeID, seatID), nil
}

func (s *Store) IsSeatHeld(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holds[holdKey{showtimeID, seatID}] == models.SeatStatusBooked, nil
}

func (s *Store) ReleaseShowtime(ctx context.Context, showtimeID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, status := range s.holds {
		if key.showtimeID == showtimeID && status == models.SeatStatusBooked {
			s.holds[key] = models.SeatStatusAvailable
			n++
		}
	}
	return n, nil
}

func (s *Store) releaseLocked(showtimeID, seatID int64) bool {
	key := holdKey{showtimeID, seatID}
	if s.holds[key] != models.SeatStatusBooked {
		return false
	}
	s.holds[key] = models.SeatStatusAvailable
	return true
}

func (s *Store) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range tickets {
		s.nextTicketID++
		t.ID = s.nextTicketID
		t.BookingDate = now
		t.CreatedAt = now
		t.UpdatedAt = now
		stored := *t
		stored.ComboIDs = append([]int64(nil), t.ComboIDs...)
		s.tickets[t.ID] = stored
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (s *Store) GetTicketsByIDs(ctx context.Context, ids []int64) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Ticket{}
	for _, id := range ids {
		if t, ok := s.tickets[id]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListTicketsByCustomer(ctx context.Context, customerID int64) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Ticket{}
	for _, t := range s.tickets {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) CancelTicket(ctx context.Context, id int64, from []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok || !contains(from, t.Status) {
		return false, nil
	}
	if s.openPaymentLocked([]int64{id}) {
		return false, store.ErrPaymentInProgress
	}
	t.Status = models.TicketStatusCancelled
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	s.releaseLocked(t.ShowtimeID, t.SeatID)
	return true, nil
}

func (s *Store) TransitionTicket(ctx context.Context, id int64, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return true, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range payment.TicketIDs {
		t, ok := s.tickets[id]
		if !ok {
			return store.ErrNotFound
		}
		if t.Status != models.TicketStatusPending {
			return fmt.Errorf("ticket %d is %s: %w", id, t.Status, store.ErrTicketNotPayable)
		}
	}
	if s.openPaymentLocked(payment.TicketIDs) {
		return store.ErrPaymentInProgress
	}

	s.nextPaymentID++
	now := s.now()
	payment.ID = s.nextPaymentID
	payment.CreatedAt = now
	payment.UpdatedAt = now

	stored := *payment
	stored.TicketIDs = append([]int64(nil), payment.TicketIDs...)
	s.payments[payment.OrderID] = stored
	return nil
}

func (s *Store) RecordGatewayResponse(ctx context.Context, paymentID int64, paymentURL string, resultCode int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.paymentByIDLocked(paymentID)
	if !ok {
		return store.ErrNotFound
	}
	p.PaymentURL = paymentURL
	p.ResultCode = &resultCode
	p.Message = message
	p.UpdatedAt = s.now()
	s.payments[p.OrderID] = p
	return nil
}

func (s *Store) MarkPaymentFailed(ctx context.Context, paymentID int64, resultCode *int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.paymentByIDLocked(paymentID)
	if !ok || p.Status != models.PaymentStatusPending {
		return nil
	}
	p.Status = models.PaymentStatusFailed
	if resultCode != nil {
		code := *resultCode
		p.ResultCode = &code
	}
	p.Message = message
	p.UpdatedAt = s.now()
	s.payments[p.OrderID] = p
	return nil
}

func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPaymentsByCustomer(ctx context.Context, customerID int64) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Payment{}
	for _, p := range s.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) openPaymentLocked(ticketIDs []int64) bool {
	for _, p := range s.payments {
		if p.Status != models.PaymentStatusPending {
			continue
		}
		for _, id := range p.TicketIDs {
			if containsID(ticketIDs, id) {
				return true
			}
		}
	}
	return false
}

func (s *Store) SettlePayment(ctx context.Context, st models.Settlement) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[st.OrderID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if p.IsTerminal() {
		return &p, false, nil
	}

	now := s.now()
	code := st.ResultCode
	p.TransID = st.TransID
	p.ResultCode = &code
	p.Message = st.Message
	p.UpdatedAt = now
	if st.Success {
		p.Status = models.PaymentStatusCompleted
	} else {
		p.Status = models.PaymentStatusFailed
	}
	s.payments[p.OrderID] = p

	for _, id := range p.TicketIDs {
		t, ok := s.tickets[id]
		if !ok || t.Status != models.TicketStatusPending {
			continue
		}
		if st.Success {
			t.Status = models.TicketStatusPaid
		} else {
			t.Status = models.TicketStatusCancelled
			s.releaseLocked(t.ShowtimeID, t.SeatID)
		}
		t.UpdatedAt = now
		s.tickets[id] = t
	}

	return &p, true, nil
}

func (s *Store) ExpirePendingPayments(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for orderID, p := range s.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			p.Status = models.PaymentStatusExpired
			p.Message = "payment intent expired"
			p.UpdatedAt = s.now()
			s.payments[orderID] = p
			n++
		}
	}
	return n, nil
}

func (s *Store) paymentByIDLocked(id int64) (models.Payment, bool) {
	for _, p := range s.payments {
		if p.ID == id {
			return p, true
		}
	}
	return models.Payment{}, false
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsID(ids []int64, id int64) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
