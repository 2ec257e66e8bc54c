// Package service implements the reservation coordinator.  It owns the
// ordering of every booking and cancellation: validate, consult the
// availability cache, run the conditional inventory write and the ledger
// write in one transaction, then refresh the cache and publish a message.
// Seats are never counted in process; the storage layer's conditional
// write is the only overbooking guard.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/seat-booking/internal/cache"
	"github.com/iliyamo/seat-booking/internal/logger"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/repository"
)

// Inventory is the event store.  TryReserve must apply its decrement with
// a single conditional write and report a failed condition as
// repository.ErrConflict.
type Inventory interface {
	Create(ctx context.Context, name string, totalSeats int) (*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	Search(ctx context.Context, q repository.EventSearchQuery) ([]model.Event, int64, error)
	TryReserve(ctx context.Context, id string, seats int) (*model.Event, error)
	Release(ctx context.Context, id string, seats int) (*model.Event, error)
}

// Ledger is the booking store.
type Ledger interface {
	Append(ctx context.Context, eventID, userID string, seats int) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID, eventID, userID string) (*model.Booking, error)
	ListActiveByEvent(ctx context.Context, eventID string) ([]model.Booking, error)
	ListActiveByUser(ctx context.Context, userID string) ([]model.UserBooking, error)
}

// Transactor runs fn in one storage transaction.  Inventory and Ledger
// calls made with the ctx passed to fn join it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher delivers booking messages.  Failures are logged, never
// returned to the client.
type Publisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// Availability sources.
const (
	SourceCache = "cache"
	SourceStore = "store"
)

const (
	publishTimeout = 3 * time.Second
	readTimeout    = 5 * time.Second
)

// BookingResult is the booking or cancellation together with the event as
// it stood right after the commit.
type BookingResult struct {
	Booking model.Booking
	Event   model.Event
}

// Availability answers whether an event can currently fit a request.
type Availability struct {
	Available      bool
	AvailableSeats int
	Source         string
}

// Reservations coordinates the inventory, ledger and availability cache.
type Reservations struct {
	events   Inventory
	bookings Ledger
	tx       Transactor
	cache    *cache.Availability
	pub      Publisher
	log      *zap.Logger
	tracer   trace.Tracer
	loads    singleflight.Group
	readTTL  time.Duration
	now      func() time.Time
}

// Option configures Reservations.
type Option func(*Reservations)

// WithPublisher sets the booking message publisher.  The default drops
// every message.
func WithPublisher(p Publisher) Option {
	return func(r *Reservations) { r.pub = p }
}

// WithTracer sets the tracer used for one span per operation.
func WithTracer(t trace.Tracer) Option {
	return func(r *Reservations) { r.tracer = t }
}

// WithReadTimeout bounds the shared store read made on a cache miss.  The
// read outlives any single caller, so it needs its own deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(r *Reservations) {
		if d > 0 {
			r.readTTL = d
		}
	}
}

// NewReservations wires the coordinator.
func NewReservations(events Inventory, bookings Ledger, tx Transactor, avail *cache.Availability, log *zap.Logger, opts ...Option) *Reservations {
	r := &Reservations{
		events:   events,
		bookings: bookings,
		tx:       tx,
		cache:    avail,
		pub:      queue.Nop{},
		log:      log,
		tracer:   noop.NewTracerProvider().Tracer("reservations"),
		readTTL:  readTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BookSeats reserves seats for userID on eventID and records the booking.
func (r *Reservations) BookSeats(ctx context.Context, eventID, userID string, seats int) (*BookingResult, error) {
	ctx, span := r.tracer.Start(ctx, "Reservations.BookSeats", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.Int("seats", seats),
	))
	defer span.End()

	if eventID == "" || userID == "" || seats < 1 {
		return nil, ErrInvalidInput
	}

	// A cached count below the request is a cheap reject.  A cached count
	// at or above it proves nothing; the conditional write decides.
	if cached, ok := r.cache.Get(eventID); ok {
		if cached < seats {
			span.SetAttributes(attribute.String("rejected_by", SourceCache))
			return nil, ErrInsufficientCapacity
		}
	} else if _, err := r.loadAvailable(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, r.fail(ctx, span, "load event", txError(err))
	}

	var res BookingResult
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		ev, err := r.events.TryReserve(ctx, eventID, seats)
		if errors.Is(err, repository.ErrConflict) {
			return ErrInsufficientCapacity
		}
		if err != nil {
			return fmt.Errorf("reserve seats: %w", err)
		}
		b, err := r.bookings.Append(ctx, eventID, userID, seats)
		if err != nil {
			return fmt.Errorf("append booking: %w", err)
		}
		res = BookingResult{Booking: *b, Event: *ev}
		return nil
	})
	if errors.Is(err, ErrInsufficientCapacity) {
		// The cached count was too high; force the next request to read.
		r.cache.Invalidate(eventID)
		return nil, err
	}
	if err != nil {
		return nil, r.fail(ctx, span, "book seats", txError(err))
	}

	r.cache.Set(eventID, res.Event.AvailableSeats)
	logger.Info(ctx, r.log, "seats booked",
		zap.String("booking_id", res.Booking.ID),
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
		zap.Int("seats", seats),
		zap.Int("available_seats", res.Event.AvailableSeats),
	)
	r.publish(ctx, queue.QueueBookingConfirmed, res)
	return &res, nil
}

// CancelBooking cancels an active booking owned by userID and returns its
// seats to the event.
func (r *Reservations) CancelBooking(ctx context.Context, eventID, bookingID, userID string) (*BookingResult, error) {
	ctx, span := r.tracer.Start(ctx, "Reservations.CancelBooking", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("booking.id", bookingID),
	))
	defer span.End()

	if eventID == "" || bookingID == "" || userID == "" {
		return nil, ErrInvalidInput
	}

	var res BookingResult
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := r.bookings.Cancel(ctx, bookingID, eventID, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		ev, err := r.events.Release(ctx, eventID, b.Seats)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("release seats: %w", err)
		}
		res = BookingResult{Booking: *b, Event: *ev}
		return nil
	})
	if errors.Is(err, ErrBookingNotFound) || errors.Is(err, ErrEventNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, r.fail(ctx, span, "cancel booking", txError(err))
	}

	r.cache.Set(eventID, res.Event.AvailableSeats)
	logger.Info(ctx, r.log, "booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
		zap.Int("seats", res.Booking.Seats),
		zap.Int("available_seats", res.Event.AvailableSeats),
	)
	r.publish(ctx, queue.QueueBookingCancelled, res)
	return &res, nil
}

// CheckAvailability reports whether seats can currently be booked.  The
// answer is advisory; a later BookSeats may still fail.
func (r *Reservations) CheckAvailability(ctx context.Context, eventID string, seats int) (Availability, error) {
	ctx, span := r.tracer.Start(ctx, "Reservations.CheckAvailability", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.Int("seats", seats),
	))
	defer span.End()

	if eventID == "" || seats < 1 {
		return Availability{}, ErrInvalidInput
	}
	if cached, ok := r.cache.Get(eventID); ok {
		span.SetAttributes(attribute.String("source", SourceCache))
		return Availability{Available: cached >= seats, AvailableSeats: cached, Source: SourceCache}, nil
	}

	span.SetAttributes(attribute.String("source", SourceStore))
	n, err := r.loadAvailable(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return Availability{Available: false, AvailableSeats: 0, Source: SourceStore}, nil
	}
	if err != nil {
		return Availability{}, r.fail(ctx, span, "load event", txError(err))
	}
	return Availability{Available: n >= seats, AvailableSeats: n, Source: SourceStore}, nil
}

// loadAvailable reads the event's available seats from the store and
// caches them.  Concurrent calls for one event share a single read, which
// runs under its own deadline; each caller stops waiting when its ctx ends.
func (r *Reservations) loadAvailable(ctx context.Context, eventID string) (int, error) {
	ch := r.loads.DoChan(eventID, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.readTTL)
		defer cancel()
		ev, err := r.events.Get(rctx, eventID)
		if err != nil {
			return 0, err
		}
		r.cache.Set(ev.ID, ev.AvailableSeats)
		return ev.AvailableSeats, nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

// CreateEvent adds an event with every seat available and warms the cache.
func (r *Reservations) CreateEvent(ctx context.Context, name string, totalSeats int) (*model.Event, error) {
	ctx, span := r.tracer.Start(ctx, "Reservations.CreateEvent")
	defer span.End()

	if err := repository.ValidateEvent(name, totalSeats); err != nil {
		return nil, ErrInvalidInput
	}
	ev, err := r.events.Create(ctx, name, totalSeats)
	if errors.Is(err, repository.ErrInvalid) {
		return nil, ErrInvalidInput
	}
	if err != nil {
		return nil, r.fail(ctx, span, "create event", err)
	}
	r.cache.Set(ev.ID, ev.AvailableSeats)
	logger.Info(ctx, r.log, "event created",
		zap.String("event_id", ev.ID),
		zap.Int("total_seats", ev.TotalSeats),
	)
	return ev, nil
}

// GetEvent returns one event.
func (r *Reservations) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	ev, err := r.events.Get(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// ListEvents returns every event, newest first.
func (r *Reservations) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := r.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// EventPage is one page of search results.
type EventPage struct {
	Events   []model.Event
	Total    int64
	Page     int
	PageSize int
}

// Search page size bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SearchEvents returns events whose name contains q.Name, optionally
// skipping sold-out ones.  Out-of-range paging values are clamped.
func (r *Reservations) SearchEvents(ctx context.Context, q repository.EventSearchQuery) (EventPage, error) {
	ctx, span := r.tracer.Start(ctx, "Reservations.SearchEvents")
	defer span.End()

	q.Name = strings.TrimSpace(q.Name)
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	events, total, err := r.events.Search(ctx, q)
	if err != nil {
		return EventPage{}, r.fail(ctx, span, "search events", err)
	}
	return EventPage{Events: events, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// ListBookingsForEvent returns the active bookings of an existing event.
func (r *Reservations) ListBookingsForEvent(ctx context.Context, eventID string) ([]model.Booking, error) {
	if _, err := r.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	out, err := r.bookings.ListActiveByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event bookings: %w", err)
	}
	return out, nil
}

// ListBookingsForUser returns the caller's active bookings with event names.
func (r *Reservations) ListBookingsForUser(ctx context.Context, userID string) ([]model.UserBooking, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	out, err := r.bookings.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return out, nil
}

// txError classifies a failed transaction.  Begin, commit and deadline
// failures become ErrTransactionFailure.
func txError(err error) error {
	if errors.Is(err, repository.ErrTxFailed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}
	return err
}

func (r *Reservations) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	logger.Error(ctx, r.log, op+" failed", zap.Error(err))
	if errors.Is(err, ErrTransactionFailure) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Reservations) publish(ctx context.Context, typ string, res BookingResult) {
	ev := queue.BookingEvent{
		Type:           typ,
		BookingID:      res.Booking.ID,
		EventID:        res.Event.ID,
		EventName:      res.Event.Name,
		UserID:         res.Booking.UserID,
		Seats:          res.Booking.Seats,
		AvailableSeats: res.Event.AvailableSeats,
		OccurredAt:     r.now().UTC(),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := r.pub.Publish(pctx, ev)
	switch {
	case err == nil:
	case queue.IsBreakerOpen(err):
		// The breaker already logged the trip.
		logger.Debug(ctx, r.log, "booking message dropped, broker circuit open",
			zap.String("type", typ),
			zap.String("booking_id", ev.BookingID),
		)
	default:
		logger.Warn(ctx, r.log, "booking message not published",
			zap.String("type", typ),
			zap.String("booking_id", ev.BookingID),
			zap.Error(err),
		)
	}
}
