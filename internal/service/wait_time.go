package service

import (
	"context"

	"waitlist/internal/domain"
	"waitlist/internal/events"
	"waitlist/internal/models"
)

// WaitEstimate is one entry of a wait_time_update event.
type WaitEstimate struct {
	BookingID            string `json:"bookingId"`
	Position             int    `json:"position"`
	EstimatedWaitMinutes int    `json:"estimatedWaitMinutes"`
}

type WaitTimeUpdate struct {
	RestaurantID string         `json:"restaurantId"`
	Waits        []WaitEstimate `json:"waits"`
}

// estimateWait gives the wait for the party at 1-based queue position.
func (s *WaitlistService) estimateWait(restaurant *models.Restaurant, position int) int {
	turn := restaurant.AverageTurnMinutes
	if turn <= 0 {
		turn = s.opts.AverageTurnMinutes
	}
	return position * turn
}

// RecalculateWaitTimes refreshes the estimate of every waiting booking from its
// queue position and publishes the result.
func (s *WaitlistService) RecalculateWaitTimes(ctx context.Context, restaurantID string) (*WaitTimeUpdate, error) {
	restaurant, err := s.restaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.store.ListBookings(ctx, restaurantID, []models.BookingStatus{models.StatusWaiting})
	if err != nil {
		return nil, err
	}

	update := &WaitTimeUpdate{RestaurantID: restaurantID, Waits: make([]WaitEstimate, 0, len(waiting))}
	for i, b := range waiting {
		estimate := s.estimateWait(restaurant, i+1)
		if estimate != b.EstimatedWaitMinutes {
			if err := s.store.UpdateBookingFields(ctx, b.ID, domain.BookingFields{EstimatedWaitMinutes: &estimate}); err != nil {
				return nil, err
			}
		}
		update.Waits = append(update.Waits, WaitEstimate{
			BookingID:            b.ID,
			Position:             i + 1,
			EstimatedWaitMinutes: estimate,
		})
	}

	s.publish(ctx, restaurantID, events.KindWaitTimeUpdate, update)
	return update, nil
}
