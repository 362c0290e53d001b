package service

import "waitlist/internal/models"

var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusWaiting:   {models.StatusNotified, models.StatusCancelled},
	models.StatusNotified:  {models.StatusConfirmed, models.StatusSeated, models.StatusCancelled, models.StatusNoShow},
	models.StatusConfirmed: {models.StatusSeated, models.StatusCancelled, models.StatusNoShow},
	models.StatusSeated:    {models.StatusCompleted},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to models.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
