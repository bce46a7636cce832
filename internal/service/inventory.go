package service

import (
	"context"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// SeatInventory guards the per-showtime booking state of seats. Reserve is the
// only place a seat moves to BOOKED.
type SeatInventory struct {
	catalog Catalog
	ledger  SeatLedger
	logger  *zap.Logger
}

// NewSeatInventory creates a new seat inventory
func NewSeatInventory(catalog Catalog, ledger SeatLedger) *SeatInventory {
	return &SeatInventory{
		catalog: catalog,
		ledger:  ledger,
		logger:  util.GetLogger(),
	}
}

// Reserve atomically books a seat for a showtime. Exactly one of several
// concurrent callers for the same seat succeeds; the rest get SEAT_UNAVAILABLE.
func (si *SeatInventory) Reserve(ctx context.Context, showtimeID, seatID int64) error {
	ctx, span := util.StartSpan(ctx, "SeatInventory.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SeatReserveLatency.Observe(time.Since(start).Seconds())
	}()

	ok, err := si.ledger.HoldSeat(ctx, showtimeID, seatID)
	if err != nil {
		util.SeatReservationsFailed.WithLabelValues("error").Inc()
		return lookupError(err, apperr.CodeSeatNotFound, "seat %d not found", seatID)
	}
	if !ok {
		util.SeatReservationsFailed.WithLabelValues("taken").Inc()
		return apperr.Conflict(apperr.CodeSeatUnavailable, "seat %d is not available for showtime %d", seatID, showtimeID)
	}

	return nil
}

// Release frees a seat for a showtime. Releasing a seat that is not booked is a no-op.
func (si *SeatInventory) Release(ctx context.Context, showtimeID, seatID int64) error {
	ctx, span := util.StartSpan(ctx, "SeatInventory.Release")
	defer span.End()

	released, err := si.ledger.ReleaseSeat(ctx, showtimeID, seatID)
	if err != nil {
		return lookupError(err, apperr.CodeSeatNotFound, "seat %d not found", seatID)
	}
	if released {
		util.SeatsReleasedTotal.WithLabelValues("release").Inc()
	}

	return nil
}

// IsAvailable reports whether a seat can currently be reserved for a showtime
func (si *SeatInventory) IsAvailable(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	seat, err := si.catalog.GetSeat(ctx, seatID)
	if err != nil {
		return false, lookupError(err, apperr.CodeSeatNotFound, "seat %d not found", seatID)
	}
	if seat.Status != models.SeatStatusAvailable {
		return false, nil
	}

	held, err := si.ledger.IsSeatHeld(ctx, showtimeID, seatID)
	if err != nil {
		return false, apperr.Internal(err, "failed to check seat %d", seatID)
	}
	return !held, nil
}

// releaseAll is the compensation path of a failed booking
func (si *SeatInventory) releaseAll(ctx context.Context, showtimeID int64, seatIDs []int64) {
	for _, seatID := range seatIDs {
		if err := si.Release(ctx, showtimeID, seatID); err != nil {
			si.logger.Error("Failed to compensate seat reservation",
				zap.Int64("showtime_id", showtimeID),
				zap.Int64("seat_id", seatID),
				zap.Error(err))
		}
	}
}
