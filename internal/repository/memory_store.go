package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"waitlist/internal/database"
	"waitlist/internal/domain"
	"waitlist/internal/models"
)

// MemoryStore is a single-process domain.Store with the same conditional update
// semantics as the SQLite store. Used when no database path is configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	bookings    map[string]*models.Booking
	tables      map[string]*models.Table
	restaurants map[string]*models.Restaurant
	messages    map[string]*models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:    make(map[string]*models.Booking),
		tables:      make(map[string]*models.Table),
		restaurants: make(map[string]*models.Restaurant),
		messages:    make(map[string]*models.Message),
	}
}

func (s *MemoryStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	s.bookings[booking.ID] = booking.Clone()
	return nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, database.ErrNotFound)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) FindActiveBookingByPhone(ctx context.Context, phone string, statuses []models.BookingStatus) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found  *models.Booking
		latest time.Time
	)
	for _, b := range s.bookings {
		if b.Phone != phone || !hasStatus(statuses, b.Status) {
			continue
		}
		at := b.CreatedAt
		if b.NotifiedAt != nil {
			at = *b.NotifiedAt
		}
		if found == nil || at.After(latest) {
			found, latest = b, at
		}
	}
	if found == nil {
		return nil, fmt.Errorf("active booking for %s: %w", phone, database.ErrNotFound)
	}
	return found.Clone(), nil
}

func (s *MemoryStore) ListBookings(ctx context.Context, restaurantID string, statuses []models.BookingStatus) ([]*models.Booking, error) {
	return s.listBookings(func(b *models.Booking) bool {
		return b.RestaurantID == restaurantID && hasStatus(statuses, b.Status)
	}), nil
}

func (s *MemoryStore) ListBookingsByStatus(ctx context.Context, statuses []models.BookingStatus) ([]*models.Booking, error) {
	return s.listBookings(func(b *models.Booking) bool {
		return hasStatus(statuses, b.Status)
	}), nil
}

func (s *MemoryStore) listBookings(match func(*models.Booking) bool) []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Booking
	for _, b := range s.bookings {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) UpdateBookingFields(ctx context.Context, id string, fields domain.BookingFields) error {
	if fields.EstimatedWaitMinutes == nil && fields.DeliveryStatus == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, database.ErrNotFound)
	}
	if fields.EstimatedWaitMinutes != nil {
		b.EstimatedWaitMinutes = *fields.EstimatedWaitMinutes
	}
	if fields.DeliveryStatus != nil {
		b.DeliveryStatus = *fields.DeliveryStatus
	}
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ApplyTransition(ctx context.Context, tr domain.Transition) error {
	next := tr.Booking
	if next == nil {
		return errors.New("transition without booking")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[next.ID]
	if !ok || current.Status != tr.ExpectedStatus || current.Version != tr.ExpectedVersion {
		return database.ErrConcurrentModification
	}

	if next.Status.HoldsTable() && next.TableID != nil {
		for id, other := range s.bookings {
			if id != next.ID && other.Status.HoldsTable() && other.TableIDValue() == *next.TableID {
				return database.ErrConcurrentModification
			}
		}
	}

	var table *models.Table
	if change := tr.Table; change != nil {
		table, ok = s.tables[change.TableID]
		if !ok || table.Status != change.FromStatus || stringValue(table.BookingID) != change.HeldBy {
			return database.ErrConcurrentModification
		}
	}

	stored := next.Clone()
	stored.DeliveryStatus = current.DeliveryStatus
	stored.Version = tr.ExpectedVersion + 1
	s.bookings[next.ID] = stored

	if table != nil {
		table.Status = tr.Table.ToStatus
		table.BookingID = cloneString(tr.Table.BookingID)
		table.Version++
		table.UpdatedAt = next.UpdatedAt
	}

	next.Version = stored.Version
	return nil
}

func (s *MemoryStore) UpsertTable(ctx context.Context, table *models.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tables[table.ID]; ok {
		existing.RestaurantID = table.RestaurantID
		existing.Label = table.Label
		existing.Capacity = table.Capacity
		return nil
	}
	stored := table.Clone()
	if stored.Status == "" {
		stored.Status = models.TableAvailable
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now().UTC()
	}
	s.tables[table.ID] = stored
	return nil
}

func (s *MemoryStore) GetTable(ctx context.Context, id string) (*models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[id]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", id, database.ErrNotFound)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListTables(ctx context.Context, restaurantID string) ([]*models.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Table
	for _, t := range s.tables {
		if t.RestaurantID == restaurantID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *MemoryStore) UpdateTableStatus(ctx context.Context, id string, from, to models.TableStatus) error {
	if to == models.TableHeld || to == models.TableOccupied {
		return fmt.Errorf("table status %s requires a booking transition", to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[id]
	if !ok || t.Status != from || t.BookingID != nil {
		return database.ErrConcurrentModification
	}
	t.Status = to
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpsertRestaurant(ctx context.Context, restaurant *models.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *restaurant
	s.restaurants[r.ID] = &r
	return nil
}

func (s *MemoryStore) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.restaurants[id]
	if !ok {
		return nil, fmt.Errorf("restaurant %s: %w", id, database.ErrNotFound)
	}
	out := *r
	return &out, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("message %s already exists", msg.ID)
	}
	m := *msg
	s.messages[m.ID] = &m
	return nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[msg.ID]
	if !ok {
		return fmt.Errorf("message %s: %w", msg.ID, database.ErrNotFound)
	}
	m.DeliveryStatus = msg.DeliveryStatus
	m.ProviderMessageID = msg.ProviderMessageID
	m.Error = msg.Error
	m.UpdatedAt = msg.UpdatedAt
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, bookingID string) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Message
	for _, m := range s.messages {
		if m.BookingID == bookingID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Attempt < out[j].Attempt
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func hasStatus(statuses []models.BookingStatus, status models.BookingStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
