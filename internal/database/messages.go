package database

import (
	"context"
	"fmt"

	"waitlist/internal/models"
)

func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `INSERT INTO messages (id, booking_id, restaurant_id, phone, direction, template_key, body, language,
            attempt, delivery_status, provider_message_id, error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		msg.ID, msg.BookingID, msg.RestaurantID, msg.Phone, string(msg.Direction), msg.TemplateKey, msg.Body,
		string(msg.Language), msg.Attempt, msg.DeliveryStatus, msg.ProviderMessageID, msg.Error,
		msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// UpdateMessage records the delivery outcome of a message; other fields are immutable.
func (db *DB) UpdateMessage(ctx context.Context, msg *models.Message) error {
	query := `UPDATE messages SET delivery_status = ?, provider_message_id = ?, error = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, msg.DeliveryStatus, msg.ProviderMessageID, msg.Error, msg.UpdatedAt, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("message %s: %w", msg.ID, ErrNotFound)
	}
	return nil
}

func (db *DB) ListMessages(ctx context.Context, bookingID string) ([]*models.Message, error) {
	query := `SELECT id, booking_id, restaurant_id, phone, direction, template_key, body, language,
            attempt, delivery_status, provider_message_id, error, created_at, updated_at
        FROM messages WHERE booking_id = ? ORDER BY created_at ASC, attempt ASC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var (
			m                   models.Message
			direction, language string
		)
		if err := rows.Scan(&m.ID, &m.BookingID, &m.RestaurantID, &m.Phone, &direction, &m.TemplateKey, &m.Body,
			&language, &m.Attempt, &m.DeliveryStatus, &m.ProviderMessageID, &m.Error, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Direction = models.Direction(direction)
		m.Language = models.Language(language)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
