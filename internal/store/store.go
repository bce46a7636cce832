package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrTicketNotPayable is returned when a payment names a ticket that is no longer PENDING
	ErrTicketNotPayable = errors.New("ticket is not payable")
	// ErrPaymentInProgress is returned when a ticket already belongs to a PENDING payment
	ErrPaymentInProgress = errors.New("ticket has a payment in progress")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const showtimeColumns = `id, movie_id, room_id, showtime_date,
	to_char(start_time, 'HH24:MI:SS') AS start_time,
	to_char(end_time, 'HH24:MI:SS') AS end_time,
	base_price`

// GetShowtime retrieves a showtime by ID
func (s *Store) GetShowtime(ctx context.Context, id int64) (*models.Showtime, error) {
	var st models.Showtime
	err := s.db.GetContext(ctx, &st, "SELECT "+showtimeColumns+" FROM showtimes WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get showtime %d: %w", id, err)
	}
	return &st, nil
}

// GetSeat retrieves a seat by ID
func (s *Store) GetSeat(ctx context.Context, id int64) (*models.Seat, error) {
	var seat models.Seat
	err := s.db.GetContext(ctx, &seat, "SELECT * FROM seats WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seat %d: %w", id, err)
	}
	return &seat, nil
}

// GetCombo retrieves a combo by ID
func (s *Store) GetCombo(ctx context.Context, id int64) (*models.Combo, error) {
	var combo models.Combo
	err := s.db.GetContext(ctx, &combo, "SELECT id, name, price FROM combos WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get combo %d: %w", id, err)
	}
	return &combo, nil
}

// GetPromotionByCode retrieves a promotion by its code
func (s *Store) GetPromotionByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	err := s.db.GetContext(ctx, &promo, "SELECT * FROM promotions WHERE code = $1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get promotion %q: %w", code, err)
	}
	return &promo, nil
}

// ListPromotionsActiveOn returns promotions whose date range contains day
func (s *Store) ListPromotionsActiveOn(ctx context.Context, day time.Time) ([]models.Promotion, error) {
	promos := []models.Promotion{}
	err := s.db.SelectContext(ctx, &promos,
		"SELECT * FROM promotions WHERE start_date <= $1::date AND end_date >= $1::date ORDER BY id",
		day.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list active promotions: %w", err)
	}
	return promos, nil
}

// FindFinishedShowtimes returns showtimes on date whose end time is at or before clock ("HH:MM:SS")
func (s *Store) FindFinishedShowtimes(ctx context.Context, date time.Time, clock string) ([]models.Showtime, error) {
	showtimes := []models.Showtime{}
	err := s.db.SelectContext(ctx, &showtimes,
		"SELECT "+showtimeColumns+" FROM showtimes WHERE showtime_date = $1::date AND end_time <= $2::time ORDER BY id",
		date.Format(models.DateLayout), clock)
	if err != nil {
		return nil, fmt.Errorf("failed to find finished showtimes: %w", err)
	}
	return showtimes, nil
}
