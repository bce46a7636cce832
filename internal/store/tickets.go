package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateTickets inserts all tickets of a booking in one transaction
func (s *Store) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range tickets {
		err := tx.GetContext(ctx, t, `
			INSERT INTO tickets (seat_id, showtime_id, customer_id, price, status, booking_date)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING *`,
			t.SeatID, t.ShowtimeID, t.CustomerID, t.Price, t.Status)
		if err != nil {
			return fmt.Errorf("failed to insert ticket for seat %d: %w", t.SeatID, err)
		}

		for _, comboID := range t.ComboIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO ticket_combos (ticket_id, combo_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				t.ID, comboID); err != nil {
				return fmt.Errorf("failed to attach combo %d: %w", comboID, err)
			}
		}
	}

	return tx.Commit()
}

// GetTicket retrieves a ticket by ID
func (s *Store) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.GetContext(ctx, &t, "SELECT * FROM tickets WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket %d: %w", id, err)
	}

	tickets := []models.Ticket{t}
	if err := s.attachCombos(ctx, tickets); err != nil {
		return nil, err
	}
	return &tickets[0], nil
}

// GetTicketsByIDs retrieves multiple tickets by IDs
func (s *Store) GetTicketsByIDs(ctx context.Context, ids []int64) ([]models.Ticket, error) {
	if len(ids) == 0 {
		return []models.Ticket{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM tickets WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	tickets := []models.Ticket{}
	if err := s.db.SelectContext(ctx, &tickets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get tickets: %w", err)
	}
	return tickets, s.attachCombos(ctx, tickets)
}

// ListTicketsByCustomer retrieves a customer's tickets, newest first
func (s *Store) ListTicketsByCustomer(ctx context.Context, customerID int64) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := s.db.SelectContext(ctx, &tickets,
		"SELECT * FROM tickets WHERE customer_id = $1 ORDER BY created_at DESC, id DESC", customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, s.attachCombos(ctx, tickets)
}

// CancelTicket cancels a ticket if its current status is one of from, and
// releases its seat hold in the same transaction. It returns false when the
// ticket was not in an allowed status and ErrPaymentInProgress when the
// ticket belongs to a PENDING payment.
func (s *Store) CancelTicket(ctx context.Context, id int64, from []string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(`
		UPDATE tickets SET status = ?, updated_at = NOW()
		WHERE id = ? AND status IN (?)
		RETURNING showtime_id, seat_id`,
		models.TicketStatusCancelled, id, from)
	if err != nil {
		return false, err
	}

	var ref struct {
		ShowtimeID int64 `db:"showtime_id"`
		SeatID     int64 `db:"seat_id"`
	}
	err = tx.GetContext(ctx, &ref, tx.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cancel ticket %d: %w", id, err)
	}

	open, err := hasOpenPayment(ctx, tx, []int64{id})
	if err != nil {
		return false, err
	}
	if open {
		return false, ErrPaymentInProgress
	}

	if _, err := releaseSeatTx(ctx, tx, ref.ShowtimeID, ref.SeatID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// TransitionTicket moves a ticket from one status to another, returning
// false if the ticket was not in the expected status.
func (s *Store) TransitionTicket(ctx context.Context, id int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tickets SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3", to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update ticket %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Store) attachCombos(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	ids := make([]int64, len(tickets))
	byID := make(map[int64]*models.Ticket, len(tickets))
	for i := range tickets {
		ids[i] = tickets[i].ID
		byID[tickets[i].ID] = &tickets[i]
	}

	query, args, err := sqlx.In("SELECT ticket_id, combo_id FROM ticket_combos WHERE ticket_id IN (?) ORDER BY combo_id", ids)
	if err != nil {
		return err
	}

	var rows []struct {
		TicketID int64 `db:"ticket_id"`
		ComboID  int64 `db:"combo_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load ticket combos: %w", err)
	}

	for _, r := range rows {
		if t, ok := byID[r.TicketID]; ok {
			t.ComboIDs = append(t.ComboIDs, r.ComboID)
		}
	}
	return nil
}
