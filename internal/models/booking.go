package models

import (
	"fmt"
	"time"
)

// Booking is one waitlist entry for a restaurant.
type Booking struct {
	ID                   string        `json:"id"`
	RestaurantID         string        `json:"restaurant_id"`
	CustomerName         string        `json:"customer_name"`
	Phone                string        `json:"phone"`
	PartySize            int           `json:"party_size"`
	Language             Language      `json:"language"`
	Status               BookingStatus `json:"status"`
	TableID              *string       `json:"table_id,omitempty"`
	EstimatedWaitMinutes int           `json:"estimated_wait_minutes"`
	NotifiedAt           *time.Time    `json:"notified_at,omitempty"`
	GraceDeadline        *time.Time    `json:"grace_deadline,omitempty"`
	FollowUpSentAt       *time.Time    `json:"follow_up_sent_at,omitempty"`
	SeatedAt             *time.Time    `json:"seated_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	CancelledAt          *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason         string        `json:"cancel_reason,omitempty"`
	DeliveryStatus       string        `json:"delivery_status,omitempty"` // queued, sent, failed
	Version              int64         `json:"version"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Cancel reasons recorded on cancelled bookings.
const (
	CancelReasonStaff    = "staff"
	CancelReasonCustomer = "customer"
	CancelReasonExpired  = "grace_expired"
)

// Clone returns a deep copy so callers can mutate a snapshot safely.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.TableID = cloneString(b.TableID)
	c.NotifiedAt = cloneTime(b.NotifiedAt)
	c.GraceDeadline = cloneTime(b.GraceDeadline)
	c.FollowUpSentAt = cloneTime(b.FollowUpSentAt)
	c.SeatedAt = cloneTime(b.SeatedAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	return &c
}

// TableIDValue returns the assigned table id or "".
func (b *Booking) TableIDValue() string {
	if b == nil || b.TableID == nil {
		return ""
	}
	return *b.TableID
}

// CheckInvariants verifies the state-dependent field rules of a booking.
func (b *Booking) CheckInvariants() error {
	if !b.Status.Valid() {
		return fmt.Errorf("booking %s: unknown status %q", b.ID, b.Status)
	}
	hasTable := b.TableID != nil && *b.TableID != ""
	if hasTable != b.Status.HoldsTable() {
		return fmt.Errorf("booking %s: table assignment %v inconsistent with status %s", b.ID, hasTable, b.Status)
	}
	if (b.GraceDeadline != nil) != b.Status.InGracePeriod() {
		return fmt.Errorf("booking %s: grace deadline presence inconsistent with status %s", b.ID, b.Status)
	}
	return nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
