package model

import "time"

// Event is a bookable entity with a fixed seat pool.  TotalSeats is set
// once at creation; AvailableSeats moves only through reservations and
// releases and always stays within [0, TotalSeats].
//
// Fields:
//  ID             – UUID assigned at creation.
//  Name           – display name (1..200 characters).
//  TotalSeats     – size of the seat pool, immutable.
//  AvailableSeats – seats not held by an active booking.
//  Version        – bumped on every change of AvailableSeats.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Event struct {
	ID             string    // events.id
	Name           string    // events.name
	TotalSeats     int       // events.total_seats
	AvailableSeats int       // events.available_seats
	Version        uint64    // events.version
	CreatedAt      time.Time // events.created_at
	UpdatedAt      time.Time // events.updated_at
}

// SoldOut reports whether no seats remain.
func (e Event) SoldOut() bool { return e.AvailableSeats == 0 }

// MaxEventNameLength bounds Event.Name.
const MaxEventNameLength = 200
