package model

import "time"

// BookingStatus is the lifecycle state of a booking.  A booking starts
// active and moves to cancelled exactly once.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking is a claim on Seats seats of one event, owned by one user.
// Every active booking is paired with exactly one decrement of the
// event's available seats.
//
// Fields:
//  ID          – UUID assigned at creation.
//  EventID     – owning event.
//  UserID      – opaque identity of the requester.
//  Seats       – number of seats held, at least one.
//  Status      – active or cancelled.
//  CreatedAt   – creation timestamp.
//  CancelledAt – set once when the booking is cancelled.
type Booking struct {
	ID          string        // bookings.id
	EventID     string        // bookings.event_id
	UserID      string        // bookings.user_id
	Seats       int           // bookings.seats
	Status      BookingStatus // bookings.status
	CreatedAt   time.Time     // bookings.created_at
	CancelledAt *time.Time    // bookings.cancelled_at (nullable)
}

// UserBooking is a booking enriched with the name of its event, as shown
// in a user's own booking list.
type UserBooking struct {
	Booking
	EventName string
}
