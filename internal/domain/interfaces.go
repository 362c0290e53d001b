package domain

import (
	"context"
	"time"

	"waitlist/internal/events"
	"waitlist/internal/models"
)

// Transition is one atomic booking state change, optionally paired with a table status change.
// The store applies it only if the booking is still in ExpectedStatus at ExpectedVersion and,
// when Table is set, the table is still in Table.FromStatus.
type Transition struct {
	Booking         *models.Booking
	ExpectedStatus  models.BookingStatus
	ExpectedVersion int64
	Table           *models.TableChange
}

// BookingFields are non-lifecycle columns that may be updated outside a transition.
type BookingFields struct {
	EstimatedWaitMinutes *int
	DeliveryStatus       *string
}

type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	FindActiveBookingByPhone(ctx context.Context, phone string, statuses []models.BookingStatus) (*models.Booking, error)
	ListBookings(ctx context.Context, restaurantID string, statuses []models.BookingStatus) ([]*models.Booking, error)
	ListBookingsByStatus(ctx context.Context, statuses []models.BookingStatus) ([]*models.Booking, error)
	UpdateBookingFields(ctx context.Context, id string, fields BookingFields) error
	// ApplyTransition bumps the booking version on success and returns
	// database.ErrConcurrentModification when any guard fails.
	ApplyTransition(ctx context.Context, tr Transition) error
}

type TableStore interface {
	UpsertTable(ctx context.Context, table *models.Table) error
	GetTable(ctx context.Context, id string) (*models.Table, error)
	ListTables(ctx context.Context, restaurantID string) ([]*models.Table, error)
	// UpdateTableStatus changes a table's status iff it is currently in from.
	UpdateTableStatus(ctx context.Context, id string, from, to models.TableStatus) error
}

type RestaurantStore interface {
	UpsertRestaurant(ctx context.Context, restaurant *models.Restaurant) error
	GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	UpdateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, bookingID string) ([]*models.Message, error)
}

// Store is the durable booking/table record store.
type Store interface {
	BookingStore
	TableStore
	RestaurantStore
	MessageStore
}

// SMSProvider sends one SMS through an external carrier.
type SMSProvider interface {
	Send(ctx context.Context, from, to, body string) (providerMessageID string, err error)
}

// NotificationRequest asks for one templated SMS to a customer.
type NotificationRequest struct {
	BookingID    string            `json:"booking_id"`
	RestaurantID string            `json:"restaurant_id"`
	Phone        string            `json:"phone"`
	TemplateKey  string            `json:"template_key"`
	Language     models.Language   `json:"language"`
	Vars         map[string]string `json:"vars,omitempty"`
}

// Notifier queues templated SMS without blocking the caller on delivery.
type Notifier interface {
	Enqueue(ctx context.Context, req NotificationRequest) error
}

// EventPublisher fans a restaurant event out to dashboards.
type EventPublisher interface {
	Publish(ctx context.Context, restaurantID string, kind events.Kind, payload any) error
}

// Scheduler runs cancellable timers keyed by booking id.
type Scheduler interface {
	Schedule(bookingID, kind string, at time.Time, fn func(ctx context.Context))
	Cancel(bookingID string)
}

// RateLimiter answers whether another action for key is allowed within window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
