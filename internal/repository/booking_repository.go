package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-booking/internal/model"
)

const bookingColumns = `b.id, b.event_id, b.user_id, b.seats, b.status, b.created_at, b.cancelled_at`

// BookingRepo is the booking ledger.  Rows are appended as active and move
// to cancelled at most once.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo constructs a BookingRepo with the given DB handle.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func scanBooking(s rowScanner, extra ...any) (*model.Booking, error) {
	var (
		b           model.Booking
		status      string
		cancelledAt sql.NullTime
	)
	dest := append([]any{&b.ID, &b.EventID, &b.UserID, &b.Seats, &status, &b.CreatedAt, &cancelledAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}

// Append records a new active booking.
func (r *BookingRepo) Append(ctx context.Context, eventID, userID string, seats int) (*model.Booking, error) {
	if seats < 1 || eventID == "" || userID == "" {
		return nil, ErrInvalid
	}
	b := &model.Booking{
		ID:        uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		Seats:     seats,
		Status:    model.BookingActive,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	const q = `INSERT INTO bookings (id, event_id, user_id, seats, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, q, b.ID, b.EventID, b.UserID, b.Seats, string(b.Status), b.CreatedAt); err != nil {
		return nil, err
	}
	return b, nil
}

// Cancel flips an active booking owned by userID for eventID to cancelled
// with one conditional UPDATE.  An unknown id, a foreign owner, a
// different event and a booking that is already cancelled all yield
// ErrNotFound, so of two concurrent cancellations exactly one succeeds.
func (r *BookingRepo) Cancel(ctx context.Context, bookingID, eventID, userID string) (*model.Booking, error) {
	ex := conn(ctx, r.db)
	now := time.Now().UTC().Truncate(time.Microsecond)
	const q = `UPDATE bookings SET status = ?, cancelled_at = ?
               WHERE id = ? AND event_id = ? AND user_id = ? AND status = ?`
	res, err := ex.ExecContext(ctx, q, string(model.BookingCancelled), now, bookingID, eventID, userID, string(model.BookingActive))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	const sel = `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	b, err := scanBooking(ex.QueryRowContext(ctx, sel, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListActiveByEvent returns the active bookings of an event, newest first.
func (r *BookingRepo) ListActiveByEvent(ctx context.Context, eventID string) ([]model.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings b
               WHERE b.event_id = ? AND b.status = ?
               ORDER BY b.created_at DESC, b.id DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, eventID, string(model.BookingActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ListActiveByUser returns the active bookings of a user, newest first,
// each joined with the name of its event.
func (r *BookingRepo) ListActiveByUser(ctx context.Context, userID string) ([]model.UserBooking, error) {
	const q = `SELECT ` + bookingColumns + `, e.name FROM bookings b
               JOIN events e ON e.id = b.event_id
               WHERE b.user_id = ? AND b.status = ?
               ORDER BY b.created_at DESC, b.id DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, userID, string(model.BookingActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.UserBooking, 0)
	for rows.Next() {
		var name string
		b, err := scanBooking(rows, &name)
		if err != nil {
			return nil, err
		}
		out = append(out, model.UserBooking{Booking: *b, EventName: name})
	}
	return out, rows.Err()
}
