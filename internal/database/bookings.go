package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"waitlist/internal/domain"
	"waitlist/internal/models"
)

const bookingColumns = `id, restaurant_id, customer_name, phone, party_size, language, status, table_id,
        estimated_wait_minutes, notified_at, grace_deadline, follow_up_sent_at, seated_at, completed_at,
        cancelled_at, cancel_reason, delivery_status, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                                        models.Booking
		tableID                                                  sql.NullString
		notified, deadline, followUp, seated, completed, cancel sql.NullTime
		language, status                                         string
	)
	err := row.Scan(
		&b.ID, &b.RestaurantID, &b.CustomerName, &b.Phone, &b.PartySize, &language, &status, &tableID,
		&b.EstimatedWaitMinutes, &notified, &deadline, &followUp, &seated, &completed,
		&cancel, &b.CancelReason, &b.DeliveryStatus, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Language = models.Language(language)
	b.Status = models.BookingStatus(status)
	b.TableID = stringPtr(tableID)
	b.NotifiedAt = timePtr(notified)
	b.GraceDeadline = timePtr(deadline)
	b.FollowUpSentAt = timePtr(followUp)
	b.SeatedAt = timePtr(seated)
	b.CompletedAt = timePtr(completed)
	b.CancelledAt = timePtr(cancel)
	return &b, nil
}

// CreateBooking inserts a new booking. ID and timestamps must already be set.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		booking.ID, booking.RestaurantID, booking.CustomerName, booking.Phone, booking.PartySize,
		string(booking.Language), string(booking.Status), nullString(booking.TableID),
		booking.EstimatedWaitMinutes, booking.NotifiedAt, booking.GraceDeadline, booking.FollowUpSentAt,
		booking.SeatedAt, booking.CompletedAt, booking.CancelledAt, booking.CancelReason,
		booking.DeliveryStatus, booking.Version, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// FindActiveBookingByPhone returns the most recently offered booking for a phone in one of statuses.
func (db *DB) FindActiveBookingByPhone(ctx context.Context, phone string, statuses []models.BookingStatus) (*models.Booking, error) {
	args := []any{phone}
	args = append(args, statusArgs(statuses)...)
	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE phone = ? AND status IN (` + inClause(len(statuses)) + `)
        ORDER BY COALESCE(notified_at, created_at) DESC LIMIT 1`

	booking, err := scanBooking(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active booking for %s: %w", phone, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking by phone: %w", err)
	}
	return booking, nil
}

// ListBookings returns a restaurant's bookings in the given statuses, oldest first.
func (db *DB) ListBookings(ctx context.Context, restaurantID string, statuses []models.BookingStatus) ([]*models.Booking, error) {
	args := []any{restaurantID}
	args = append(args, statusArgs(statuses)...)
	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE restaurant_id = ? AND status IN (` + inClause(len(statuses)) + `)
        ORDER BY created_at ASC`
	return db.queryBookings(ctx, query, args...)
}

// ListBookingsByStatus returns bookings across all restaurants in the given statuses.
func (db *DB) ListBookingsByStatus(ctx context.Context, statuses []models.BookingStatus) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
        WHERE status IN (` + inClause(len(statuses)) + `)
        ORDER BY created_at ASC`
	return db.queryBookings(ctx, query, statusArgs(statuses)...)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// UpdateBookingFields writes non-lifecycle columns without touching status or version.
func (db *DB) UpdateBookingFields(ctx context.Context, id string, fields domain.BookingFields) error {
	if fields.EstimatedWaitMinutes == nil && fields.DeliveryStatus == nil {
		return nil
	}
	query := `UPDATE bookings SET
            estimated_wait_minutes = COALESCE(?, estimated_wait_minutes),
            delivery_status = COALESCE(?, delivery_status),
            updated_at = ?
        WHERE id = ?`
	result, err := db.ExecContext(ctx, query, fields.EstimatedWaitMinutes, fields.DeliveryStatus, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update booking fields: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return nil
}

// ApplyTransition writes the new booking state and optional table change in one transaction.
// Both writes are conditional; if either guard fails nothing is written.
func (db *DB) ApplyTransition(ctx context.Context, tr domain.Transition) error {
	b := tr.Booking
	if b == nil {
		return errors.New("transition without booking")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE bookings SET
            status = ?, table_id = ?, estimated_wait_minutes = ?, notified_at = ?, grace_deadline = ?,
            follow_up_sent_at = ?, seated_at = ?, completed_at = ?, cancelled_at = ?, cancel_reason = ?,
            version = version + 1, updated_at = ?
        WHERE id = ? AND status = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		string(b.Status), nullString(b.TableID), b.EstimatedWaitMinutes, b.NotifiedAt, b.GraceDeadline,
		b.FollowUpSentAt, b.SeatedAt, b.CompletedAt, b.CancelledAt, b.CancelReason, b.UpdatedAt,
		b.ID, string(tr.ExpectedStatus), tr.ExpectedVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}

	if tr.Table != nil {
		if err := updateTableTx(ctx, tx, tr.Table, b.UpdatedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	b.Version = tr.ExpectedVersion + 1
	return nil
}

func statusArgs(statuses []models.BookingStatus) []any {
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return args
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}
