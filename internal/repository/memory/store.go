// Package memory provides an in-process implementation of the event
// inventory, booking ledger, user and refresh token stores.  It serves the
// memory store driver and the service and handler tests.
//
// A transaction holds the store-wide write lock from begin to commit and
// keeps an undo log, so the multi-record atomicity of the MySQL stores is
// preserved: either every write made inside WithinTx is visible or none is.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
)

type txKey struct{}

type tx struct {
	store *Store
	undo  []func()
}

// onRollback registers f to run if the transaction aborts.  Calls outside
// a transaction (nil receiver) are auto-committed and record nothing.
func (t *tx) onRollback(f func()) {
	if t != nil {
		t.undo = append(t.undo, f)
	}
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

type eventRow struct {
	model.Event
	seq uint64
}

type bookingRow struct {
	model.Booking
	seq uint64
}

type tokenRow struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

// Store is a mutex-guarded set of maps.  The zero value is not usable; call
// New.
type Store struct {
	mu      sync.RWMutex
	timeout time.Duration
	now     func() time.Time
	seq     uint64

	events   map[string]*eventRow
	bookings map[string]*bookingRow
	users    map[string]*model.User
	byName   map[string]string // username -> user id
	tokens   map[string]*tokenRow
}

// Option configures a Store.
type Option func(*Store)

// WithTxTimeout bounds every WithinTx call.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		events:   make(map[string]*eventRow),
		bookings: make(map[string]*bookingRow),
		users:    make(map[string]*model.User),
		byName:   make(map[string]string),
		tokens:   make(map[string]*tokenRow),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) txFrom(ctx context.Context) *tx {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.store == s {
		return t
	}
	return nil
}

// write runs fn under the write lock, or directly when ctx already carries
// this store's transaction (which owns the lock).
func (s *Store) write(ctx context.Context, fn func(t *tx) error) error {
	if t := s.txFrom(ctx); t != nil {
		return fn(t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(nil)
}

func (s *Store) read(ctx context.Context, fn func()) {
	if s.txFrom(ctx) != nil {
		fn()
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

func (s *Store) stamp() (time.Time, uint64) {
	s.seq++
	return s.now().UTC(), s.seq
}

// WithinTx runs fn as one atomic unit.  An error from fn, or a deadline
// that expires before fn returns, undoes every write fn made.  Deadline
// failures are reported as repository.ErrTxFailed.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: begin: %v", repository.ErrTxFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s}
	err := fn(context.WithValue(ctx, txKey{}, t))
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, repository.ErrTxFailed) {
		err = fmt.Errorf("%w: commit: %v", repository.ErrTxFailed, ctxErr)
	}
	if err != nil {
		t.rollback()
		return err
	}
	return nil
}

// Create inserts a new event with every seat available.
func (s *Store) Create(ctx context.Context, name string, totalSeats int) (*model.Event, error) {
	if err := repository.ValidateEvent(name, totalSeats); err != nil {
		return nil, err
	}
	var out model.Event
	err := s.write(ctx, func(t *tx) error {
		now, seq := s.stamp()
		row := &eventRow{
			Event: model.Event{
				ID:             uuid.NewString(),
				Name:           strings.TrimSpace(name),
				TotalSeats:     totalSeats,
				AvailableSeats: totalSeats,
				CreatedAt:      now,
				UpdatedAt:      now,
			},
			seq: seq,
		}
		s.events[row.ID] = row
		t.onRollback(func() { delete(s.events, row.ID) })
		out = row.Event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns a copy of the event or repository.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*model.Event, error) {
	var (
		out   model.Event
		found bool
	)
	s.read(ctx, func() {
		if row, ok := s.events[id]; ok {
			out, found = row.Event, true
		}
	})
	if !found {
		return nil, repository.ErrNotFound
	}
	return &out, nil
}

// List returns all events, newest first.
func (s *Store) List(ctx context.Context) ([]model.Event, error) {
	var rows []*eventRow
	s.read(ctx, func() {
		rows = make([]*eventRow, 0, len(s.events))
		for _, row := range s.events {
			cp := *row
			rows = append(rows, &cp)
		}
	})
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Event)
	}
	return out, nil
}

// Search filters List by name and availability and returns one page.
func (s *Store) Search(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	name := strings.ToLower(q.Name)
	matched := make([]model.Event, 0, len(all))
	for _, e := range all {
		if name != "" && !strings.Contains(strings.ToLower(e.Name), name) {
			continue
		}
		if q.OnlyAvailable && e.AvailableSeats == 0 {
			continue
		}
		matched = append(matched, e)
	}
	total := int64(len(matched))
	start := min(q.Offset(), len(matched))
	end := min(start+q.PageSize, len(matched))
	return matched[start:end], total, nil
}

// TryReserve decrements the available seats if at least seats remain.  A
// missing event and a short pool both yield repository.ErrConflict.
func (s *Store) TryReserve(ctx context.Context, id string, seats int) (*model.Event, error) {
	if seats < 1 {
		return nil, repository.ErrInvalid
	}
	var out model.Event
	err := s.write(ctx, func(t *tx) error {
		row, ok := s.events[id]
		if !ok || row.AvailableSeats < seats {
			return repository.ErrConflict
		}
		prev := row.Event
		row.AvailableSeats -= seats
		row.Version++
		row.UpdatedAt = s.now().UTC()
		t.onRollback(func() { row.Event = prev })
		out = row.Event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Release increments the available seats unconditionally.
func (s *Store) Release(ctx context.Context, id string, seats int) (*model.Event, error) {
	if seats < 1 {
		return nil, repository.ErrInvalid
	}
	var out model.Event
	err := s.write(ctx, func(t *tx) error {
		row, ok := s.events[id]
		if !ok {
			return repository.ErrNotFound
		}
		prev := row.Event
		row.AvailableSeats += seats
		row.Version++
		row.UpdatedAt = s.now().UTC()
		t.onRollback(func() { row.Event = prev })
		out = row.Event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Append records a new active booking.
func (s *Store) Append(ctx context.Context, eventID, userID string, seats int) (*model.Booking, error) {
	if seats < 1 || eventID == "" || userID == "" {
		return nil, repository.ErrInvalid
	}
	var out model.Booking
	err := s.write(ctx, func(t *tx) error {
		now, seq := s.stamp()
		row := &bookingRow{
			Booking: model.Booking{
				ID:        uuid.NewString(),
				EventID:   eventID,
				UserID:    userID,
				Seats:     seats,
				Status:    model.BookingActive,
				CreatedAt: now,
			},
			seq: seq,
		}
		s.bookings[row.ID] = row
		t.onRollback(func() { delete(s.bookings, row.ID) })
		out = row.Booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel moves an active booking of userID for eventID to cancelled.  Any
// mismatch is repository.ErrNotFound.
func (s *Store) Cancel(ctx context.Context, bookingID, eventID, userID string) (*model.Booking, error) {
	var out model.Booking
	err := s.write(ctx, func(t *tx) error {
		row, ok := s.bookings[bookingID]
		if !ok || row.EventID != eventID || row.UserID != userID || row.Status != model.BookingActive {
			return repository.ErrNotFound
		}
		prev := row.Booking
		now := s.now().UTC()
		row.Status = model.BookingCancelled
		row.CancelledAt = &now
		t.onRollback(func() { row.Booking = prev })
		out = row.Booking
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) activeBookings(ctx context.Context, keep func(*bookingRow) bool) []bookingRow {
	var rows []bookingRow
	s.read(ctx, func() {
		for _, row := range s.bookings {
			if row.Status == model.BookingActive && keep(row) {
				rows = append(rows, *row)
			}
		}
	})
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	return rows
}

// ListActiveByEvent returns the active bookings of an event, newest first.
func (s *Store) ListActiveByEvent(ctx context.Context, eventID string) ([]model.Booking, error) {
	rows := s.activeBookings(ctx, func(b *bookingRow) bool { return b.EventID == eventID })
	out := make([]model.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Booking)
	}
	return out, nil
}

// ListActiveByUser returns the active bookings of a user, newest first,
// joined with their event names.
func (s *Store) ListActiveByUser(ctx context.Context, userID string) ([]model.UserBooking, error) {
	rows := s.activeBookings(ctx, func(b *bookingRow) bool { return b.UserID == userID })
	out := make([]model.UserBooking, 0, len(rows))
	s.read(ctx, func() {
		for _, row := range rows {
			ev, ok := s.events[row.EventID]
			if !ok {
				continue
			}
			out = append(out, model.UserBooking{Booking: row.Booking, EventName: ev.Name})
		}
	})
	return out, nil
}
