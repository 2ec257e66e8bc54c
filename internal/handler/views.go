package handler

import (
	"time"

	"github.com/iliyamo/seat-booking/internal/model"
)

type eventView struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	SoldOut        bool      `json:"sold_out"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toEventView(e model.Event) eventView {
	return eventView{
		ID:             e.ID,
		Name:           e.Name,
		TotalSeats:     e.TotalSeats,
		AvailableSeats: e.AvailableSeats,
		SoldOut:        e.SoldOut(),
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

type bookingView struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	EventName   string     `json:"event_name,omitempty"`
	UserID      string     `json:"user_id"`
	Seats       int        `json:"seats"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func toBookingView(b model.Booking) bookingView {
	return bookingView{
		ID:          b.ID,
		EventID:     b.EventID,
		UserID:      b.UserID,
		Seats:       b.Seats,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
		CancelledAt: b.CancelledAt,
	}
}

type bookingResultView struct {
	Booking bookingView `json:"booking"`
	Event   eventView   `json:"event"`
}
