package models

import "time"

// Table is a physical seating unit.
type Table struct {
	ID           string      `json:"id" yaml:"id"`
	RestaurantID string      `json:"restaurant_id" yaml:"-"`
	Label        string      `json:"label" yaml:"label"`
	Capacity     int         `json:"capacity" yaml:"capacity"`
	Status       TableStatus `json:"status" yaml:"status"`
	BookingID    *string     `json:"booking_id,omitempty" yaml:"-"`
	Version      int64       `json:"version" yaml:"-"`
	UpdatedAt    time.Time   `json:"updated_at" yaml:"-"`
}

// Clone returns a copy of the table.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := *t
	c.BookingID = cloneString(t.BookingID)
	return &c
}

// TableChange is a conditional table status update applied together with a booking transition.
// The update only succeeds when the table is currently in FromStatus and held by HeldBy
// ("" meaning no booking). BookingID becomes the new holder; nil clears it.
type TableChange struct {
	TableID    string
	FromStatus TableStatus
	HeldBy     string
	ToStatus   TableStatus
	BookingID  *string
}

// Restaurant carries the per-restaurant waitlist policy.
type Restaurant struct {
	ID                    string `json:"id" yaml:"id"`
	Name                  string `json:"name" yaml:"name"`
	GracePeriodMinutes    int    `json:"grace_period_minutes" yaml:"grace_period_minutes"`
	FollowUpBeforeMinutes int    `json:"follow_up_before_minutes" yaml:"follow_up_before_minutes"`
	AverageTurnMinutes    int    `json:"average_turn_minutes" yaml:"average_turn_minutes"`
}

// GracePeriod returns the configured grace period, falling back to the default.
func (r *Restaurant) GracePeriod() time.Duration {
	if r == nil || r.GracePeriodMinutes <= 0 {
		return DefaultGracePeriodMinutes * time.Minute
	}
	return time.Duration(r.GracePeriodMinutes) * time.Minute
}

// FollowUpBefore returns the follow-up offset before the grace deadline.
func (r *Restaurant) FollowUpBefore() time.Duration {
	if r == nil || r.FollowUpBeforeMinutes <= 0 {
		return DefaultFollowUpBeforeMinutes * time.Minute
	}
	return time.Duration(r.FollowUpBeforeMinutes) * time.Minute
}
