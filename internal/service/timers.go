package service

import (
	"context"
	"time"

	"waitlist/internal/models"
)

const (
	timerFollowUp    = "follow_up"
	timerGraceExpiry = "grace_expiry"
)

// scheduleTimers arms the follow-up and grace expiry timers of a booking in
// its grace period. The follow-up is only armed while the reminder is still
// ahead of now and has not been sent.
func (s *WaitlistService) scheduleTimers(b *models.Booking, restaurant *models.Restaurant) {
	if b.GraceDeadline == nil || !b.Status.InGracePeriod() {
		return
	}
	deadline := *b.GraceDeadline

	if b.Status == models.StatusNotified && b.FollowUpSentAt == nil {
		followUpAt := deadline.Add(-restaurant.FollowUpBefore())
		if followUpAt.After(s.now()) {
			s.scheduler.Schedule(b.ID, timerFollowUp, followUpAt, s.followUpTimer(b.ID))
		}
	}
	s.scheduler.Schedule(b.ID, timerGraceExpiry, deadline, s.graceTimer(b.ID))
}

func (s *WaitlistService) followUpTimer(bookingID string) func(ctx context.Context) {
	return func(ctx context.Context) {
		if _, err := s.HandleFollowUpDue(ctx, bookingID); err != nil {
			s.logger.Error().Err(err).Str("booking_id", bookingID).Msg("follow-up timer failed")
		}
	}
}

func (s *WaitlistService) graceTimer(bookingID string) func(ctx context.Context) {
	return func(ctx context.Context) {
		if _, err := s.HandleGraceExpired(ctx, bookingID); err != nil {
			s.logger.Error().Err(err).Str("booking_id", bookingID).Msg("grace expiry timer failed")
		}
	}
}

// RestoreTimers re-arms timers for every booking in its grace period, e.g. after
// a restart. Deadlines that already passed fire immediately.
func (s *WaitlistService) RestoreTimers(ctx context.Context) (int, error) {
	bookings, err := s.store.ListBookingsByStatus(ctx, []models.BookingStatus{models.StatusNotified, models.StatusConfirmed})
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, b := range bookings {
		restaurant, err := s.restaurant(ctx, b.RestaurantID)
		if err != nil {
			s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("skipping timer restore")
			continue
		}
		s.scheduleTimers(b, restaurant)
		restored++
	}

	s.logger.Info().Int("bookings", restored).Time("at", s.now().Truncate(time.Second)).Msg("timers restored")
	return restored, nil
}
