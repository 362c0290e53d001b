package models

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

const (
	DeliveryQueued   = "queued"
	DeliverySent     = "sent"
	DeliveryFailed   = "failed"
	DeliveryReceived = "received"
)

// Message records one SMS exchanged with a customer.
type Message struct {
	ID                string    `json:"id"`
	BookingID         string    `json:"booking_id,omitempty"`
	RestaurantID      string    `json:"restaurant_id,omitempty"`
	Phone             string    `json:"phone"`
	Direction         Direction `json:"direction"`
	TemplateKey       string    `json:"template_key,omitempty"`
	Body              string    `json:"body"`
	Language          Language  `json:"language,omitempty"`
	Attempt           int       `json:"attempt,omitempty"`
	DeliveryStatus    string    `json:"delivery_status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
