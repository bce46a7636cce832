package service

import (
	"context"
	"errors"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/pricing"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingCoordinator turns a seat selection into PENDING tickets
type BookingCoordinator struct {
	catalog    Catalog
	tickets    TicketStore
	inventory  *SeatInventory
	promotions *PromotionValidator
	events     EventPublisher
	now        Clock
	logger     *zap.Logger
}

// NewBookingCoordinator creates a new booking coordinator
func NewBookingCoordinator(
	catalog Catalog,
	tickets TicketStore,
	inventory *SeatInventory,
	promotions *PromotionValidator,
	events EventPublisher,
	now Clock,
) *BookingCoordinator {
	if now == nil {
		now = time.Now
	}
	return &BookingCoordinator{
		catalog:    catalog,
		tickets:    tickets,
		inventory:  inventory,
		promotions: promotions,
		events:     events,
		now:        now,
		logger:     util.GetLogger(),
	}
}

// BookRequest represents a request to book seats for a showtime
type BookRequest struct {
	ShowtimeID    int64   `json:"showtime_id" binding:"required"`
	SeatIDs       []int64 `json:"seat_ids" binding:"required,min=1"`
	ComboIDs      []int64 `json:"combo_ids,omitempty"`
	PromotionCode string  `json:"promotion_code,omitempty"`
}

// BookingResult represents the tickets created by a booking
type BookingResult struct {
	Tickets          []models.Ticket `json:"tickets"`
	TotalAmount      int64           `json:"total_amount"`
	TotalComboAmount int64           `json:"total_combo_amount"`
	DiscountPercent  float64         `json:"discount_percent"`
}

// Book reserves every requested seat and creates one PENDING ticket per seat.
// Either all seats are booked or none are.
func (bc *BookingCoordinator) Book(ctx context.Context, identity models.Identity, req *BookRequest) (*BookingResult, error) {
	ctx, span := util.StartSpan(ctx, "BookingCoordinator.Book")
	defer span.End()

	if identity.CustomerID <= 0 {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if err := validateSeatSelection(req.SeatIDs); err != nil {
		util.BookingsFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	showtime, err := bc.catalog.GetShowtime(ctx, req.ShowtimeID)
	if err != nil {
		return nil, lookupError(err, apperr.CodeShowtimeNotFound, "showtime %d not found", req.ShowtimeID)
	}

	seats, err := bc.validateSeats(ctx, showtime, req.SeatIDs)
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues(apperr.CodeOf(err)).Inc()
		return nil, err
	}

	comboIDs, comboTotal, err := bc.resolveCombos(ctx, req.ComboIDs)
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues(apperr.CodeOf(err)).Inc()
		return nil, err
	}

	var discount float64
	if req.PromotionCode != "" {
		discount, err = bc.promotions.Validate(ctx, req.PromotionCode, bc.now())
		if err != nil {
			util.BookingsFailedTotal.WithLabelValues(apperr.CodeOf(err)).Inc()
			return nil, err
		}
	}

	reserved := make([]int64, 0, len(seats))
	for _, seat := range seats {
		if err := bc.inventory.Reserve(ctx, showtime.ID, seat.ID); err != nil {
			bc.inventory.releaseAll(ctx, showtime.ID, reserved)
			util.BookingsFailedTotal.WithLabelValues(apperr.CodeOf(err)).Inc()
			bc.logger.Info("Seat lost to concurrent booking",
				zap.Int64("showtime_id", showtime.ID),
				zap.Int64("seat_id", seat.ID),
				zap.Int("rolled_back", len(reserved)))
			return nil, err
		}
		reserved = append(reserved, seat.ID)
	}

	tickets := make([]*models.Ticket, 0, len(seats))
	for _, seat := range seats {
		price, err := pricing.PerSeat(pricing.Input{
			BasePrice:       showtime.BasePrice,
			Multiplier:      pricing.MultiplierFor(seat),
			AddOnTotal:      comboTotal,
			SeatCount:       len(seats),
			DiscountPercent: discount,
		})
		if err != nil {
			bc.inventory.releaseAll(ctx, showtime.ID, reserved)
			return nil, apperr.Validation("cannot price seat %s: %v", seat.Label(), err)
		}

		tickets = append(tickets, &models.Ticket{
			SeatID:     seat.ID,
			ShowtimeID: showtime.ID,
			CustomerID: identity.CustomerID,
			Price:      price,
			Status:     models.TicketStatusPending,
			ComboIDs:   comboIDs,
		})
	}

	if err := bc.tickets.CreateTickets(ctx, tickets); err != nil {
		bc.inventory.releaseAll(ctx, showtime.ID, reserved)
		util.BookingsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, apperr.Internal(err, "failed to create tickets")
	}

	result := &BookingResult{
		Tickets:          make([]models.Ticket, 0, len(tickets)),
		TotalComboAmount: comboTotal,
		DiscountPercent:  discount,
	}
	ticketIDs := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		result.Tickets = append(result.Tickets, *t)
		result.TotalAmount += t.Price
		ticketIDs = append(ticketIDs, t.ID)
	}

	util.TicketsBookedTotal.Add(float64(len(tickets)))
	bc.logger.Info("Tickets booked",
		zap.Int64("customer_id", identity.CustomerID),
		zap.Int64("showtime_id", showtime.ID),
		zap.Int64s("ticket_ids", ticketIDs),
		zap.Int64("total_amount", result.TotalAmount))

	event := &models.TicketsBookedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeTicketsBooked, bc.now()),
		ShowtimeID:  showtime.ID,
		CustomerID:  identity.CustomerID,
		TicketIDs:   ticketIDs,
		SeatIDs:     reserved,
		TotalAmount: result.TotalAmount,
	}
	if err := bc.events.PublishTicketsBooked(ctx, event); err != nil {
		bc.logger.Error("Failed to publish TicketsBooked event", zap.Error(err))
	}

	return result, nil
}

// validateSeats loads every seat and checks it belongs to the showtime's room and is free
func (bc *BookingCoordinator) validateSeats(ctx context.Context, showtime *models.Showtime, seatIDs []int64) ([]*models.Seat, error) {
	seats := make([]*models.Seat, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		seat, err := bc.catalog.GetSeat(ctx, seatID)
		if err != nil {
			return nil, lookupError(err, apperr.CodeSeatNotFound, "seat %d not found", seatID)
		}
		if seat.RoomID != showtime.RoomID {
			return nil, apperr.New(apperr.KindValidation, apperr.CodeSeatWrongRoom,
				"seat %s does not belong to the room of showtime %d", seat.Label(), showtime.ID)
		}

		available, err := bc.inventory.IsAvailable(ctx, showtime.ID, seat.ID)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, apperr.Conflict(apperr.CodeSeatUnavailable, "seat %s is not available", seat.Label())
		}

		seats = append(seats, seat)
	}
	return seats, nil
}

// resolveCombos returns the distinct combo ids and the total add-on price.
// A combo listed twice is charged twice.
func (bc *BookingCoordinator) resolveCombos(ctx context.Context, comboIDs []int64) ([]int64, int64, error) {
	var total int64
	seen := make(map[int64]bool, len(comboIDs))
	distinct := make([]int64, 0, len(comboIDs))

	for _, comboID := range comboIDs {
		combo, err := bc.catalog.GetCombo(ctx, comboID)
		if err != nil {
			return nil, 0, lookupError(err, apperr.CodeComboNotFound, "combo %d not found", comboID)
		}
		total += combo.Price
		if !seen[comboID] {
			seen[comboID] = true
			distinct = append(distinct, comboID)
		}
	}
	return distinct, total, nil
}

func validateSeatSelection(seatIDs []int64) error {
	if len(seatIDs) == 0 {
		return apperr.Validation("at least one seat is required")
	}
	seen := make(map[int64]bool, len(seatIDs))
	for _, id := range seatIDs {
		if seen[id] {
			return apperr.Validation("seat %d is listed more than once", id)
		}
		seen[id] = true
	}
	return nil
}

// CancelTicket cancels a PENDING or PAID ticket and frees its seat.
// Only the owner or an admin may cancel, and not while a PENDING payment
// covers the ticket.
func (bc *BookingCoordinator) CancelTicket(ctx context.Context, identity models.Identity, ticketID int64) (*models.Ticket, error) {
	ctx, span := util.StartSpan(ctx, "BookingCoordinator.CancelTicket")
	defer span.End()

	ticket, err := bc.GetTicket(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}

	if ticket.Status != models.TicketStatusPending && ticket.Status != models.TicketStatusPaid {
		return nil, apperr.Conflict(apperr.CodeInvalidTicketState, "ticket %d is %s and cannot be cancelled", ticketID, ticket.Status)
	}

	cancelled, err := bc.tickets.CancelTicket(ctx, ticketID, []string{models.TicketStatusPending, models.TicketStatusPaid})
	if errors.Is(err, store.ErrPaymentInProgress) {
		return nil, apperr.Conflict(apperr.CodeInvalidTicketState, "ticket %d has a payment in progress and cannot be cancelled", ticketID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to cancel ticket %d", ticketID)
	}
	if !cancelled {
		return nil, apperr.Conflict(apperr.CodeInvalidTicketState, "ticket %d changed state and cannot be cancelled", ticketID)
	}

	util.TicketsCancelledTotal.Inc()
	bc.logger.Info("Ticket cancelled",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("cancelled_by", identity.CustomerID),
		zap.String("prev_status", ticket.Status))

	event := &models.TicketCancelledEvent{
		BaseEvent:   newBaseEvent(models.EventTypeTicketCancelled, bc.now()),
		TicketID:    ticketID,
		ShowtimeID:  ticket.ShowtimeID,
		SeatID:      ticket.SeatID,
		CancelledBy: identity.CustomerID,
		PrevStatus:  ticket.Status,
	}
	if err := bc.events.PublishTicketCancelled(ctx, event); err != nil {
		bc.logger.Error("Failed to publish TicketCancelled event", zap.Error(err))
	}

	prev := ticket.Status
	ticket.Status = models.TicketStatusCancelled
	if prev == models.TicketStatusPaid {
		bc.logger.Warn("Paid ticket cancelled, refund must be handled out of band", zap.Int64("ticket_id", ticketID))
	}
	return ticket, nil
}

// CheckIn marks a PAID ticket as USED. Admin only.
func (bc *BookingCoordinator) CheckIn(ctx context.Context, identity models.Identity, ticketID int64) (*models.Ticket, error) {
	ctx, span := util.StartSpan(ctx, "BookingCoordinator.CheckIn")
	defer span.End()

	if !identity.IsAdmin() {
		return nil, apperr.Forbidden("only staff can check tickets in")
	}

	ticket, err := bc.GetTicket(ctx, identity, ticketID)
	if err != nil {
		return nil, err
	}

	ok, err := bc.tickets.TransitionTicket(ctx, ticketID, models.TicketStatusPaid, models.TicketStatusUsed)
	if err != nil {
		return nil, apperr.Internal(err, "failed to check in ticket %d", ticketID)
	}
	if !ok {
		return nil, apperr.Conflict(apperr.CodeInvalidTicketState, "ticket %d is %s and cannot be checked in", ticketID, ticket.Status)
	}

	ticket.Status = models.TicketStatusUsed
	return ticket, nil
}

// GetTicket returns a ticket visible to identity
func (bc *BookingCoordinator) GetTicket(ctx context.Context, identity models.Identity, ticketID int64) (*models.Ticket, error) {
	ticket, err := bc.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, lookupError(err, apperr.CodeTicketNotFound, "ticket %d not found", ticketID)
	}
	if ticket.CustomerID != identity.CustomerID && !identity.IsAdmin() {
		return nil, apperr.Forbidden("ticket %d belongs to another customer", ticketID)
	}
	return ticket, nil
}

// MyTickets lists the caller's tickets
func (bc *BookingCoordinator) MyTickets(ctx context.Context, identity models.Identity) ([]models.Ticket, error) {
	tickets, err := bc.tickets.ListTicketsByCustomer(ctx, identity.CustomerID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list tickets")
	}
	return tickets, nil
}

func newBaseEvent(eventType string, at time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: at,
	}
}
