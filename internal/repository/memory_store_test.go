package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"waitlist/internal/database"
	"waitlist/internal/domain"
	"waitlist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertRestaurant(ctx, &models.Restaurant{ID: "r1", Name: "Bella Vista"}))
	require.NoError(t, s.UpsertTable(ctx, &models.Table{ID: "t1", RestaurantID: "r1", Label: "T1", Capacity: 4}))
	require.NoError(t, s.UpsertTable(ctx, &models.Table{ID: "t2", RestaurantID: "r1", Label: "T2", Capacity: 2}))
	return s
}

func newWaiting(id, phone string, created time.Time) *models.Booking {
	return &models.Booking{
		ID:           id,
		RestaurantID: "r1",
		CustomerName: "Alex",
		Phone:        phone,
		PartySize:    2,
		Language:     models.LanguageEnglish,
		Status:       models.StatusWaiting,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func notifyTr(b *models.Booking, tableID string) domain.Transition {
	next := b.Clone()
	now := time.Now().UTC()
	next.Status = models.StatusNotified
	next.TableID = &tableID
	next.NotifiedAt = &now
	next.UpdatedAt = now
	return domain.Transition{
		Booking:         next,
		ExpectedStatus:  b.Status,
		ExpectedVersion: b.Version,
		Table: &models.TableChange{
			TableID:    tableID,
			FromStatus: models.TableAvailable,
			ToStatus:   models.TableHeld,
			BookingID:  &next.ID,
		},
	}
}

func TestMemoryStoreBookings(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateBooking(ctx, newWaiting("b2", "+15145550102", base.Add(time.Minute))))
	require.NoError(t, s.CreateBooking(ctx, newWaiting("b1", "+15145550101", base)))
	assert.Error(t, s.CreateBooking(ctx, newWaiting("b1", "+15145550101", base)))

	got, err := s.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Alex", got.CustomerName)

	_, err = s.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	list, err := s.ListBookings(ctx, "r1", models.ActiveStatuses)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b1", list[0].ID)
	assert.Equal(t, "b2", list[1].ID)

	byPhone, err := s.FindActiveBookingByPhone(ctx, "+15145550102", models.ActiveStatuses)
	require.NoError(t, err)
	assert.Equal(t, "b2", byPhone.ID)

	_, err = s.FindActiveBookingByPhone(ctx, "+15145550199", models.ActiveStatuses)
	assert.ErrorIs(t, err, database.ErrNotFound)

	wait := 25
	delivered := models.DeliverySent
	require.NoError(t, s.UpdateBookingFields(ctx, "b1", domain.BookingFields{EstimatedWaitMinutes: &wait, DeliveryStatus: &delivered}))
	got, _ = s.GetBooking(ctx, "b1")
	assert.Equal(t, 25, got.EstimatedWaitMinutes)
	assert.Equal(t, models.DeliverySent, got.DeliveryStatus)
	assert.Equal(t, int64(0), got.Version)

	assert.ErrorIs(t, s.UpdateBookingFields(ctx, "missing", domain.BookingFields{EstimatedWaitMinutes: &wait}), database.ErrNotFound)
}

func TestMemoryStoreApplyTransition(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()
	b := newWaiting("b1", "+15145550101", time.Now().UTC())
	require.NoError(t, s.CreateBooking(ctx, b))

	tr := notifyTr(b, "t1")
	require.NoError(t, s.ApplyTransition(ctx, tr))
	assert.Equal(t, int64(1), tr.Booking.Version)

	stored, _ := s.GetBooking(ctx, "b1")
	assert.Equal(t, models.StatusNotified, stored.Status)
	assert.Equal(t, "t1", stored.TableIDValue())

	table, _ := s.GetTable(ctx, "t1")
	assert.Equal(t, models.TableHeld, table.Status)
	require.NotNil(t, table.BookingID)
	assert.Equal(t, "b1", *table.BookingID)

	// The stale snapshot can no longer be applied.
	assert.ErrorIs(t, s.ApplyTransition(ctx, notifyTr(b, "t2")), database.ErrConcurrentModification)
	t2, _ := s.GetTable(ctx, "t2")
	assert.Equal(t, models.TableAvailable, t2.Status)
}

func TestMemoryStoreTableGuard(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()
	b1 := newWaiting("b1", "+15145550101", time.Now().UTC())
	b2 := newWaiting("b2", "+15145550102", time.Now().UTC())
	require.NoError(t, s.CreateBooking(ctx, b1))
	require.NoError(t, s.CreateBooking(ctx, b2))

	require.NoError(t, s.ApplyTransition(ctx, notifyTr(b1, "t1")))
	assert.ErrorIs(t, s.ApplyTransition(ctx, notifyTr(b2, "t1")), database.ErrConcurrentModification)

	stored, _ := s.GetBooking(ctx, "b2")
	assert.Equal(t, models.StatusWaiting, stored.Status)
	assert.Nil(t, stored.TableID)
}

func TestMemoryStoreConcurrentAssign(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	const n = 10
	bookings := make([]*models.Booking, n)
	for i := range bookings {
		bookings[i] = newWaiting(string(rune('a'+i)), "+1514555010"+string(rune('0'+i)), time.Now().UTC())
		require.NoError(t, s.CreateBooking(ctx, bookings[i]))
	}

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for _, b := range bookings {
		wg.Add(1)
		go func(b *models.Booking) {
			defer wg.Done()
			if err := s.ApplyTransition(ctx, notifyTr(b, "t1")); err == nil {
				success.Add(1)
			}
		}(b)
	}
	wg.Wait()

	assert.Equal(t, int32(1), success.Load())
	active, err := s.ListBookings(ctx, "r1", []models.BookingStatus{models.StatusNotified})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestMemoryStoreTables(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	tables, err := s.ListTables(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "T1", tables[0].Label)

	require.NoError(t, s.UpdateTableStatus(ctx, "t1", models.TableAvailable, models.TableUnavailable))
	assert.ErrorIs(t, s.UpdateTableStatus(ctx, "t1", models.TableAvailable, models.TableCleaning), database.ErrConcurrentModification)
	assert.Error(t, s.UpdateTableStatus(ctx, "t1", models.TableUnavailable, models.TableHeld))

	// Upsert keeps live status.
	require.NoError(t, s.UpsertTable(ctx, &models.Table{ID: "t1", RestaurantID: "r1", Label: "Patio 1", Capacity: 6}))
	t1, _ := s.GetTable(ctx, "t1")
	assert.Equal(t, models.TableUnavailable, t1.Status)
	assert.Equal(t, 6, t1.Capacity)

	_, err = s.GetTable(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)

	r, err := s.GetRestaurant(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Bella Vista", r.Name)
	_, err = s.GetRestaurant(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestMemoryStoreMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 1; i <= 2; i++ {
		require.NoError(t, s.CreateMessage(ctx, &models.Message{
			ID: "m" + string(rune('0'+i)), BookingID: "b1", Attempt: i,
			Direction: models.DirectionOutbound, DeliveryStatus: models.DeliveryQueued, CreatedAt: now,
		}))
	}
	require.NoError(t, s.UpdateMessage(ctx, &models.Message{ID: "m2", DeliveryStatus: models.DeliverySent, ProviderMessageID: "SM1"}))
	assert.ErrorIs(t, s.UpdateMessage(ctx, &models.Message{ID: "nope"}), database.ErrNotFound)

	msgs, err := s.ListMessages(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, msgs[0].Attempt)
	assert.Equal(t, models.DeliverySent, msgs[1].DeliveryStatus)
	assert.Equal(t, "SM1", msgs[1].ProviderMessageID)
}
