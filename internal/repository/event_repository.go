// Package repository contains data access logic for events.  An event is
// the inventory unit of the booking service: a fixed pool of seats whose
// available count is only ever changed through the conditional statements
// in this file.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-booking/internal/model"
)

const eventColumns = `id, name, total_seats, available_seats, version, created_at, updated_at`

// EventRepo manages persistence for events.  Every method runs on the
// transaction bound to ctx by Transactor.WithinTx when there is one and
// on the pool otherwise.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the given DB handle.
func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(s rowScanner) (*model.Event, error) {
	var e model.Event
	if err := s.Scan(&e.ID, &e.Name, &e.TotalSeats, &e.AvailableSeats, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// ValidateEvent checks the name and seat pool of a new event.
func ValidateEvent(name string, totalSeats int) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > model.MaxEventNameLength {
		return ErrInvalid
	}
	if totalSeats < 1 {
		return ErrInvalid
	}
	return nil
}

// Create inserts a new event with every seat available and returns the
// stored row.
func (r *EventRepo) Create(ctx context.Context, name string, totalSeats int) (*model.Event, error) {
	if err := ValidateEvent(name, totalSeats); err != nil {
		return nil, err
	}
	ex := conn(ctx, r.db)
	id := uuid.NewString()
	const q = `INSERT INTO events (id, name, total_seats, available_seats) VALUES (?, ?, ?, ?)`
	if _, err := ex.ExecContext(ctx, q, id, strings.TrimSpace(name), totalSeats, totalSeats); err != nil {
		return nil, err
	}
	// Read back to pick up the DB-assigned version and timestamps.
	return r.get(ctx, ex, id)
}

// Get retrieves an event by id.  It returns ErrNotFound if there is no
// matching row.
func (r *EventRepo) Get(ctx context.Context, id string) (*model.Event, error) {
	return r.get(ctx, conn(ctx, r.db), id)
}

func (r *EventRepo) get(ctx context.Context, ex executor, id string) (*model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	e, err := scanEvent(ex.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns all events, newest first.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events ORDER BY created_at DESC, id DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// TryReserve takes seats from the event's pool with a single conditional
// UPDATE.  InnoDB evaluates the WHERE clause against the latest committed
// row under an exclusive lock, so concurrent reservations can never drive
// available_seats below zero.  When no row matches, ErrConflict is
// returned; the event may be missing or short of seats.
func (r *EventRepo) TryReserve(ctx context.Context, id string, seats int) (*model.Event, error) {
	if seats < 1 {
		return nil, ErrInvalid
	}
	ex := conn(ctx, r.db)
	const q = `UPDATE events
               SET available_seats = available_seats - ?, version = version + 1
               WHERE id = ? AND available_seats >= ?`
	res, err := ex.ExecContext(ctx, q, seats, id, seats)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConflict
	}
	return r.get(ctx, ex, id)
}

// Release returns seats to the event's pool.  The increment is
// unconditional; callers pair it with the cancellation of a booking that
// held exactly this many seats.
func (r *EventRepo) Release(ctx context.Context, id string, seats int) (*model.Event, error) {
	if seats < 1 {
		return nil, ErrInvalid
	}
	ex := conn(ctx, r.db)
	const q = `UPDATE events
               SET available_seats = available_seats + ?, version = version + 1
               WHERE id = ?`
	res, err := ex.ExecContext(ctx, q, seats, id)
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
	return r.get(ctx, ex, id)
}
