package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreatePayment creates a new payment record together with its ticket links.
// The tickets are locked first, so a concurrent request for the same tickets
// waits and then sees this payment. It fails with ErrTicketNotPayable if a
// ticket left PENDING and with ErrPaymentInProgress if a ticket already
// belongs to a PENDING payment.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := lockPayableTickets(ctx, tx, payment.TicketIDs); err != nil {
		return err
	}

	err = tx.GetContext(ctx, payment, `
		INSERT INTO payments (order_id, request_id, customer_id, amount, method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		payment.OrderID, payment.RequestID, payment.CustomerID, payment.Amount, payment.Method, payment.Status)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	for _, ticketID := range payment.TicketIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO payment_tickets (payment_id, ticket_id) VALUES ($1, $2)",
			payment.ID, ticketID); err != nil {
			return fmt.Errorf("failed to link ticket %d: %w", ticketID, err)
		}
	}

	return tx.Commit()
}

// RecordGatewayResponse stores the redirect URL and result of intent creation
func (s *Store) RecordGatewayResponse(ctx context.Context, paymentID int64, paymentURL string, resultCode int, message string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET payment_url = $1, result_code = $2, message = $3, updated_at = NOW() WHERE id = $4",
		paymentURL, resultCode, message, paymentID)
	if err != nil {
		return fmt.Errorf("failed to record gateway response: %w", err)
	}
	return nil
}

// MarkPaymentFailed fails a payment that is still PENDING
func (s *Store) MarkPaymentFailed(ctx context.Context, paymentID int64, resultCode *int, message string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, result_code = COALESCE($2, result_code), message = $3, updated_at = NOW() WHERE id = $4 AND status = $5",
		models.PaymentStatusFailed, resultCode, message, paymentID, models.PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return nil
}

// GetPaymentByOrderID retrieves a payment by its gateway order id
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.GetContext(ctx, &p, "SELECT * FROM payments WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", orderID, err)
	}

	if p.TicketIDs, err = paymentTicketIDs(ctx, s.db, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPaymentsByCustomer retrieves a customer's payments, newest first
func (s *Store) ListPaymentsByCustomer(ctx context.Context, customerID int64) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE customer_id = $1 ORDER BY created_at DESC, id DESC", customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	for i := range payments {
		if payments[i].TicketIDs, err = paymentTicketIDs(ctx, s.db, payments[i].ID); err != nil {
			return nil, err
		}
	}
	return payments, nil
}

func lockPayableTickets(ctx context.Context, tx *sqlx.Tx, ticketIDs []int64) error {
	if len(ticketIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In("SELECT id, status FROM tickets WHERE id IN (?) ORDER BY id FOR UPDATE", ticketIDs)
	if err != nil {
		return err
	}

	var locked []struct {
		ID     int64  `db:"id"`
		Status string `db:"status"`
	}
	if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to lock tickets: %w", err)
	}
	if len(locked) != len(ticketIDs) {
		return ErrNotFound
	}
	for _, t := range locked {
		if t.Status != models.TicketStatusPending {
			return fmt.Errorf("ticket %d is %s: %w", t.ID, t.Status, ErrTicketNotPayable)
		}
	}

	open, err := hasOpenPayment(ctx, tx, ticketIDs)
	if err != nil {
		return err
	}
	if open {
		return ErrPaymentInProgress
	}
	return nil
}

// hasOpenPayment reports whether any of the tickets is part of a PENDING payment
func hasOpenPayment(ctx context.Context, tx *sqlx.Tx, ticketIDs []int64) (bool, error) {
	query, args, err := sqlx.In(`
		SELECT EXISTS(
			SELECT 1 FROM payment_tickets pt
			JOIN payments p ON p.id = pt.payment_id
			WHERE p.status = ? AND pt.ticket_id IN (?))`,
		models.PaymentStatusPending, ticketIDs)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists, tx.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("failed to check open payments: %w", err)
	}
	return exists, nil
}

// SettlePayment applies a gateway outcome to a PENDING payment. The payment
// row is locked for the duration of the transaction so concurrent
// notifications for the same order are serialised. It returns the payment and
// whether this call performed the terminal transition.
func (s *Store) SettlePayment(ctx context.Context, st models.Settlement) (*models.Payment, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var p models.Payment
	err = tx.GetContext(ctx, &p, "SELECT * FROM payments WHERE order_id = $1 FOR UPDATE", st.OrderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock payment: %w", err)
	}

	if p.TicketIDs, err = paymentTicketIDs(ctx, tx, p.ID); err != nil {
		return nil, false, err
	}

	if p.IsTerminal() {
		return &p, false, nil
	}

	status := models.PaymentStatusFailed
	if st.Success {
		status = models.PaymentStatusCompleted
	}

	err = tx.GetContext(ctx, &p, `
		UPDATE payments SET status = $1, trans_id = $2, result_code = $3, message = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING *`,
		status, st.TransID, st.ResultCode, st.Message, p.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update payment: %w", err)
	}

	if len(p.TicketIDs) > 0 {
		if st.Success {
			err = settleTickets(ctx, tx, p.TicketIDs, models.TicketStatusPaid)
		} else {
			err = releaseTickets(ctx, tx, p.TicketIDs)
		}
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// ExpirePendingPayments expires PENDING payments created before cutoff
func (s *Store) ExpirePendingPayments(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, message = $2, updated_at = NOW() WHERE status = $3 AND created_at < $4",
		models.PaymentStatusExpired, "payment intent expired", models.PaymentStatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire payments: %w", err)
	}
	return res.RowsAffected()
}

func paymentTicketIDs(ctx context.Context, q sqlx.QueryerContext, paymentID int64) ([]int64, error) {
	ids := []int64{}
	if err := sqlx.SelectContext(ctx, q, &ids,
		"SELECT ticket_id FROM payment_tickets WHERE payment_id = $1 ORDER BY ticket_id", paymentID); err != nil {
		return nil, fmt.Errorf("failed to load payment tickets: %w", err)
	}
	return ids, nil
}

func settleTickets(ctx context.Context, tx *sqlx.Tx, ticketIDs []int64, to string) error {
	query, args, err := sqlx.In(
		"UPDATE tickets SET status = ?, updated_at = NOW() WHERE id IN (?) AND status = ?",
		to, ticketIDs, models.TicketStatusPending)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update tickets: %w", err)
	}
	return nil
}

// releaseTickets cancels PENDING tickets and frees their seat holds
func releaseTickets(ctx context.Context, tx *sqlx.Tx, ticketIDs []int64) error {
	query, args, err := sqlx.In(`
		UPDATE tickets SET status = ?, updated_at = NOW()
		WHERE id IN (?) AND status = ?
		RETURNING showtime_id, seat_id`,
		models.TicketStatusCancelled, ticketIDs, models.TicketStatusPending)
	if err != nil {
		return err
	}

	var refs []struct {
		ShowtimeID int64 `db:"showtime_id"`
		SeatID     int64 `db:"seat_id"`
	}
	if err := tx.SelectContext(ctx, &refs, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to cancel tickets: %w", err)
	}

	for _, ref := range refs {
		if _, err := releaseSeatTx(ctx, tx, ref.ShowtimeID, ref.SeatID); err != nil {
			return err
		}
	}
	return nil
}
