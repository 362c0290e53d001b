package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"waitlist/internal/models"
)

const tableColumns = `id, restaurant_id, label, capacity, status, booking_id, version, updated_at`

func scanTable(row rowScanner) (*models.Table, error) {
	var (
		t         models.Table
		status    string
		bookingID sql.NullString
		updatedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.RestaurantID, &t.Label, &t.Capacity, &status, &bookingID, &t.Version, &updatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TableStatus(status)
	t.BookingID = stringPtr(bookingID)
	if updatedAt.Valid {
		t.UpdatedAt = updatedAt.Time
	}
	return &t, nil
}

// UpsertTable inserts a table or refreshes its label and capacity.
// Status and holder of an existing table are left as they are.
func (db *DB) UpsertTable(ctx context.Context, table *models.Table) error {
	status := table.Status
	if status == "" {
		status = models.TableAvailable
	}
	query := `INSERT INTO restaurant_tables (id, restaurant_id, label, capacity, status, booking_id, version, updated_at)
        VALUES (?, ?, ?, ?, ?, NULL, 0, ?)
        ON CONFLICT(id) DO UPDATE SET restaurant_id = excluded.restaurant_id, label = excluded.label, capacity = excluded.capacity`
	if _, err := db.ExecContext(ctx, query, table.ID, table.RestaurantID, table.Label, table.Capacity, string(status), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert table: %w", err)
	}
	return nil
}

func (db *DB) GetTable(ctx context.Context, id string) (*models.Table, error) {
	t, err := scanTable(db.QueryRowContext(ctx, `SELECT `+tableColumns+` FROM restaurant_tables WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return t, nil
}

func (db *DB) ListTables(ctx context.Context, restaurantID string) ([]*models.Table, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+tableColumns+` FROM restaurant_tables WHERE restaurant_id = ? ORDER BY label`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// UpdateTableStatus moves an unheld table between statuses that carry no booking.
func (db *DB) UpdateTableStatus(ctx context.Context, id string, from, to models.TableStatus) error {
	if to == models.TableHeld || to == models.TableOccupied {
		return fmt.Errorf("table status %s requires a booking transition", to)
	}
	change := &models.TableChange{TableID: id, FromStatus: from, ToStatus: to}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin table update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateTableTx(ctx, tx, change, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func updateTableTx(ctx context.Context, tx *sql.Tx, change *models.TableChange, now time.Time) error {
	query := `UPDATE restaurant_tables SET status = ?, booking_id = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND status = ? AND COALESCE(booking_id, '') = ?`
	result, err := tx.ExecContext(ctx, query,
		string(change.ToStatus), nullString(change.BookingID), now,
		change.TableID, string(change.FromStatus), change.HeldBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update table: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) UpsertRestaurant(ctx context.Context, r *models.Restaurant) error {
	query := `INSERT INTO restaurants (id, name, grace_period_minutes, follow_up_before_minutes, average_turn_minutes)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name,
            grace_period_minutes = excluded.grace_period_minutes,
            follow_up_before_minutes = excluded.follow_up_before_minutes,
            average_turn_minutes = excluded.average_turn_minutes`
	if _, err := db.ExecContext(ctx, query, r.ID, r.Name, r.GracePeriodMinutes, r.FollowUpBeforeMinutes, r.AverageTurnMinutes); err != nil {
		return fmt.Errorf("failed to upsert restaurant: %w", err)
	}
	return nil
}

func (db *DB) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	var r models.Restaurant
	err := db.QueryRowContext(ctx,
		`SELECT id, name, grace_period_minutes, follow_up_before_minutes, average_turn_minutes FROM restaurants WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.GracePeriodMinutes, &r.FollowUpBeforeMinutes, &r.AverageTurnMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("restaurant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get restaurant: %w", err)
	}
	return &r, nil
}
