package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// holdSeatQuery books a seat for a showtime only if the seat is physically
// usable and not already booked for that showtime.
const holdSeatQuery = `
	INSERT INTO showtime_seats (showtime_id, seat_id, status, updated_at)
	SELECT $1, s.id, 'BOOKED', NOW() FROM seats s WHERE s.id = $2 AND s.status = 'AVAILABLE'
	ON CONFLICT (showtime_id, seat_id) DO UPDATE
		SET status = 'BOOKED', updated_at = NOW()
		WHERE showtime_seats.status = 'AVAILABLE'`

const releaseSeatQuery = `
	UPDATE showtime_seats SET status = 'AVAILABLE', updated_at = NOW()
	WHERE showtime_id = $1 AND seat_id = $2 AND status = 'BOOKED'`

// HoldSeat atomically moves a seat from AVAILABLE to BOOKED for a showtime.
// It returns false when another booking holds the seat or the seat is out of service.
func (s *Store) HoldSeat(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, holdSeatQuery, showtimeID, seatID)
	if err != nil {
		return false, fmt.Errorf("failed to hold seat %d: %w", seatID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	return false, s.ensureSeatExists(ctx, seatID)
}

// ReleaseSeat moves a seat back to AVAILABLE for a showtime. Releasing a seat
// that is not booked is a no-op and returns false.
func (s *Store) ReleaseSeat(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	released, err := releaseSeatTx(ctx, s.db, showtimeID, seatID)
	if err != nil {
		return false, err
	}
	if released {
		return true, nil
	}
	return false, s.ensureSeatExists(ctx, seatID)
}

// IsSeatHeld reports whether a seat is booked for a showtime
func (s *Store) IsSeatHeld(ctx context.Context, showtimeID, seatID int64) (bool, error) {
	var held bool
	err := s.db.GetContext(ctx, &held,
		"SELECT EXISTS(SELECT 1 FROM showtime_seats WHERE showtime_id = $1 AND seat_id = $2 AND status = 'BOOKED')",
		showtimeID, seatID)
	if err != nil {
		return false, fmt.Errorf("failed to check seat hold: %w", err)
	}
	return held, nil
}

// ReleaseShowtime releases every booked seat of a showtime and returns how many were reset
func (s *Store) ReleaseShowtime(ctx context.Context, showtimeID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE showtime_seats SET status = 'AVAILABLE', updated_at = NOW() WHERE showtime_id = $1 AND status = 'BOOKED'",
		showtimeID)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats of showtime %d: %w", showtimeID, err)
	}
	return res.RowsAffected()
}

func (s *Store) ensureSeatExists(ctx context.Context, seatID int64) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM seats WHERE id = $1)", seatID); err != nil {
		return fmt.Errorf("failed to check seat %d: %w", seatID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func releaseSeatTx(ctx context.Context, ex sqlx.ExecerContext, showtimeID, seatID int64) (bool, error) {
	res, err := ex.ExecContext(ctx, releaseSeatQuery, showtimeID, seatID)
	if err != nil {
		return false, fmt.Errorf("failed to release seat %d: %w", seatID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
