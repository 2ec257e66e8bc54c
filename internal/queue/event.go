// Package queue defines the booking messages exchanged over RabbitMQ, the
// publisher used by the reservation service and the consumer that turns
// them into the booking audit log.
package queue

import "time"

// Queue names double as message types.
const (
	QueueBookingConfirmed = "booking.confirmed"
	QueueBookingCancelled = "booking.cancelled"
)

// BookingEvent is published after a booking or cancellation commits.  It
// carries enough for downstream consumers to log or notify without
// querying the primary database.
type BookingEvent struct {
	Type           string    `json:"type"`
	BookingID      string    `json:"booking_id"`
	EventID        string    `json:"event_id"`
	EventName      string    `json:"event_name"`
	UserID         string    `json:"user_id"`
	Seats          int       `json:"seats"`
	AvailableSeats int       `json:"available_seats"`
	OccurredAt     time.Time `json:"occurred_at"`
}
