package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/service/mocks"
	"booking-service/internal/store/memory"

	"github.com/stretchr/testify/require"
)

var (
	customer = models.Identity{CustomerID: 7, Role: models.RoleCustomer}
	stranger = models.Identity{CustomerID: 8, Role: models.RoleCustomer}
	admin    = models.Identity{CustomerID: 1, Role: models.RoleAdmin}
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedClock(s string) Clock {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

// newCatalog seeds one room with four seats, one showtime, a combo and promotions.
//
//	seat 1: A1 VIP, seat 2: A2 STANDARD, seat 3: A3 under maintenance, seat 4: room 2
func newCatalog() *memory.Store {
	s := memory.New()
	s.AddSeat(models.Seat{ID: 1, RoomID: 1, RowLabel: "A", ColumnNumber: 1, SeatType: models.SeatTypeVIP})
	s.AddSeat(models.Seat{ID: 2, RoomID: 1, RowLabel: "A", ColumnNumber: 2, SeatType: models.SeatTypeStandard})
	s.AddSeat(models.Seat{ID: 3, RoomID: 1, RowLabel: "A", ColumnNumber: 3, SeatType: models.SeatTypeStandard, Status: models.SeatStatusMaintenance})
	s.AddSeat(models.Seat{ID: 4, RoomID: 2, RowLabel: "B", ColumnNumber: 1, SeatType: models.SeatTypeStandard})
	s.AddShowtime(models.Showtime{ID: 100, MovieID: 5, RoomID: 1, Date: day("2026-03-10"), StartTime: "12:00:00", EndTime: "14:00:00", BasePrice: 100000})
	s.AddShowtime(models.Showtime{ID: 101, MovieID: 5, RoomID: 1, Date: day("2026-03-10"), StartTime: "20:00:00", EndTime: "22:00:00", BasePrice: 100000})
	s.AddCombo(models.Combo{ID: 1, Name: "Popcorn + Coke", Price: 20000})
	s.AddPromotion(models.Promotion{ID: 1, Code: "SPRING10", DiscountPercent: 10, StartDate: day("2026-03-01"), EndDate: day("2026-03-10")})
	s.AddPromotion(models.Promotion{ID: 2, Code: "FUTURE", DiscountPercent: 20, StartDate: day("2026-04-01"), EndDate: day("2026-04-30")})
	s.AddPromotion(models.Promotion{ID: 3, Code: "OLD", DiscountPercent: 30, StartDate: day("2026-02-01"), EndDate: day("2026-03-09")})
	return s
}

type fixture struct {
	store      *memory.Store
	events     *mocks.MockEventPublisher
	inventory  *SeatInventory
	promotions *PromotionValidator
	booking    *BookingCoordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := newCatalog()
	return newFixtureWith(t, s, s, s)
}

func newFixtureWith(t *testing.T, s *memory.Store, ledger SeatLedger, tickets TicketStore) *fixture {
	t.Helper()
	clock := fixedClock("2026-03-10 10:00:00")
	s.SetClock(clock)
	events := mocks.NewPermissivePublisher()
	inventory := NewSeatInventory(s, ledger)
	promotions := NewPromotionValidator(s)
	return &fixture{
		store:      s,
		events:     events,
		inventory:  inventory,
		promotions: promotions,
		booking:    NewBookingCoordinator(s, tickets, inventory, promotions, events, clock),
	}
}

func (f *fixture) book(t *testing.T, who models.Identity, seatIDs ...int64) []models.Ticket {
	t.Helper()
	res, err := f.booking.Book(context.Background(), who, &BookRequest{ShowtimeID: 100, SeatIDs: seatIDs})
	require.NoError(t, err)
	return res.Tickets
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperr.CodeOf(err), "unexpected error: %v", err)
}

// contestedLedger behaves like the wrapped ledger but reports one seat as
// taken at reservation time, as if another customer won the race.
type contestedLedger struct {
	SeatLedger
	takenSeat int64
}

func (l *contestedLedger) HoldSeat(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	if seatID == l.takenSeat {
		return false, nil
	}
	return l.SeatLedger.HoldSeat(ctx, showtimeID, seatID)
}

// brokenShowtimeLedger fails to release one showtime
type brokenShowtimeLedger struct {
	SeatLedger
	brokenShowtime int64
}

func (l *brokenShowtimeLedger) ReleaseShowtime(ctx context.Context, showtimeID int64) (int64, error) {
	if showtimeID == l.brokenShowtime {
		return 0, errors.New("deadlock detected")
	}
	return l.SeatLedger.ReleaseShowtime(ctx, showtimeID)
}

// failingTickets rejects ticket creation
type failingTickets struct {
	TicketStore
}

func (failingTickets) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	return errors.New("connection reset")
}

// barrierTickets holds every GetTicketsByIDs caller until all expected
// callers have read their tickets
type barrierTickets struct {
	TicketStore
	arrived sync.WaitGroup
}

func newBarrierTickets(inner TicketStore, callers int) *barrierTickets {
	b := &barrierTickets{TicketStore: inner}
	b.arrived.Add(callers)
	return b
}

func (b *barrierTickets) GetTicketsByIDs(ctx context.Context, ids []int64) ([]models.Ticket, error) {
	tickets, err := b.TicketStore.GetTicketsByIDs(ctx, ids)
	b.arrived.Done()
	b.arrived.Wait()
	return tickets, err
}

// mapCache is an in-process IdempotencyCache
type mapCache struct {
	mu   sync.Mutex
	keys map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{keys: make(map[string]interface{})}
}

func (c *mapCache) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = value
	return nil
}

func (c *mapCache) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok, nil
}
