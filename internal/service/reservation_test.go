package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/seat-booking/internal/cache"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/repository"
	"github.com/iliyamo/seat-booking/internal/repository/memory"
)

type fixture struct {
	store *memory.Store
	cache *cache.Availability
	svc   *Reservations
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	store := memory.New()
	avail := cache.NewAvailability()
	return fixture{
		store: store,
		cache: avail,
		svc:   NewReservations(store, store, store, avail, zaptest.NewLogger(t), opts...),
	}
}

func (f fixture) event(t *testing.T, seats int) *model.Event {
	t.Helper()
	ev, err := f.svc.CreateEvent(context.Background(), "Concert", seats)
	require.NoError(t, err)
	return ev
}

func (f fixture) available(t *testing.T, id string) int {
	t.Helper()
	ev, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return ev.AvailableSeats
}

// assertConsistent checks that available seats equal total minus the seats
// held by active bookings.
func (f fixture) assertConsistent(t *testing.T, id string) {
	t.Helper()
	ev, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	active, err := f.store.ListActiveByEvent(context.Background(), id)
	require.NoError(t, err)
	held := 0
	for _, b := range active {
		held += b.Seats
	}
	assert.GreaterOrEqual(t, ev.AvailableSeats, 0)
	assert.LessOrEqual(t, ev.AvailableSeats, ev.TotalSeats)
	assert.Equal(t, ev.TotalSeats-held, ev.AvailableSeats)
}

func TestBookCancelRebookScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 100)

	first, err := f.svc.BookSeats(ctx, ev.ID, "u1", 60)
	require.NoError(t, err)
	assert.Equal(t, 40, first.Event.AvailableSeats)

	_, err = f.svc.BookSeats(ctx, ev.ID, "u2", 50)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, 40, f.available(t, ev.ID))

	cancelled, err := f.svc.CancelBooking(ctx, ev.ID, first.Booking.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Booking.Status)
	assert.Equal(t, 100, cancelled.Event.AvailableSeats)

	second, err := f.svc.BookSeats(ctx, ev.ID, "u2", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, second.Event.AvailableSeats)
	f.assertConsistent(t, ev.ID)
}

func TestSequentialBookingsThenOversizedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 100)

	for i := 0; i < 5; i++ {
		_, err := f.svc.BookSeats(ctx, ev.ID, "u1", 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 75, f.available(t, ev.ID))

	_, err := f.svc.BookSeats(ctx, ev.ID, "u2", 80)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, 75, f.available(t, ev.ID))
	f.assertConsistent(t, ev.ID)
}

func TestBookSeatsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 10)

	for _, seats := range []int{0, -3} {
		_, err := f.svc.BookSeats(ctx, ev.ID, "u1", seats)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	_, err := f.svc.BookSeats(ctx, ev.ID, "", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.BookSeats(ctx, "missing", "u1", 1)
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Equal(t, 10, f.available(t, ev.ID))
}

func TestCancelTwiceReleasesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 10)
	res, err := f.svc.BookSeats(ctx, ev.ID, "u1", 4)
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, ev.ID, res.Booking.ID, "u1")
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, ev.ID, res.Booking.ID, "u1")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Equal(t, 10, f.available(t, ev.ID))
}

func TestConcurrentCancelSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 10)
	res, err := f.svc.BookSeats(ctx, ev.ID, "u1", 4)
	require.NoError(t, err)

	var ok, notFound atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CancelBooking(ctx, ev.ID, res.Booking.ID, "u1")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrBookingNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 19, notFound.Load())
	assert.Equal(t, 10, f.available(t, ev.ID))
}

func TestCancelEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 10)
	other := f.event(t, 10)
	res, err := f.svc.BookSeats(ctx, ev.ID, "u1", 3)
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, ev.ID, res.Booking.ID, "intruder")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	_, err = f.svc.CancelBooking(ctx, other.ID, res.Booking.ID, "u1")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	_, err = f.svc.CancelBooking(ctx, ev.ID, "no-such-booking", "u1")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	assert.Equal(t, 7, f.available(t, ev.ID))
	active, err := f.store.ListActiveByEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.BookingActive, active[0].Status)
}

func TestConcurrentExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 100)

	const callers = 60
	var (
		wg     sync.WaitGroup
		booked atomic.Int64
		failed atomic.Int32
	)
	for i := 0; i < callers; i++ {
		seats := 1 + rand.Intn(5)
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := f.svc.BookSeats(ctx, ev.ID, user, seats)
			switch {
			case err == nil:
				booked.Add(int64(seats))
			case errors.Is(err, ErrInsufficientCapacity):
				failed.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(string(rune('a' + i%26)))
	}
	wg.Wait()

	assert.LessOrEqual(t, booked.Load(), int64(100))
	assert.Equal(t, 100-int(booked.Load()), f.available(t, ev.ID))
	f.assertConsistent(t, ev.ID)
}

func TestConcurrentSingleSeatExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 100)

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.BookSeats(ctx, ev.ID, "u", 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 100, ok.Load())
	assert.Equal(t, 0, f.available(t, ev.ID))
	f.assertConsistent(t, ev.ID)
}

type failingLedger struct {
	*memory.Store
	err error
}

func (l failingLedger) Append(context.Context, string, string, int) (*model.Booking, error) {
	return nil, l.err
}

func TestLedgerFailureLeavesInventoryUntouched(t *testing.T) {
	store := memory.New()
	avail := cache.NewAvailability()
	boom := errors.New("ledger unavailable")
	svc := NewReservations(store, failingLedger{Store: store, err: boom}, store, avail, zaptest.NewLogger(t))
	ctx := context.Background()

	ev, err := svc.CreateEvent(ctx, "Concert", 10)
	require.NoError(t, err)

	_, err = svc.BookSeats(ctx, ev.ID, "u1", 4)
	require.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.AvailableSeats)
	assert.Equal(t, uint64(0), got.Version)
	cached, _ := avail.Get(ev.ID)
	assert.Equal(t, 10, cached)
}

type slowLedger struct {
	*memory.Store
}

func (l slowLedger) Append(ctx context.Context, _, _ string, _ int) (*model.Booking, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTransactionTimeoutIsTransactionFailure(t *testing.T) {
	store := memory.New(memory.WithTxTimeout(20 * time.Millisecond))
	svc := NewReservations(store, slowLedger{store}, store, cache.NewAvailability(), zaptest.NewLogger(t))
	ctx := context.Background()

	ev, err := svc.CreateEvent(ctx, "Concert", 10)
	require.NoError(t, err)

	_, err = svc.BookSeats(ctx, ev.ID, "u1", 2)
	assert.ErrorIs(t, err, ErrTransactionFailure)
	assert.Equal(t, 10, mustGet(t, store, ev.ID).AvailableSeats)
}

func mustGet(t *testing.T, store *memory.Store, id string) *model.Event {
	t.Helper()
	ev, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return ev
}

func TestCacheFastPathRejectsWithoutTouchingStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 10)

	f.cache.Set(ev.ID, 1)
	_, err := f.svc.BookSeats(ctx, ev.ID, "u1", 2)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, 10, f.available(t, ev.ID))
}

func TestStaleHighCacheDoesNotOverbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 3)

	f.cache.Set(ev.ID, 50)
	_, err := f.svc.BookSeats(ctx, ev.ID, "u1", 4)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, 3, f.available(t, ev.ID))

	_, ok := f.cache.Get(ev.ID)
	assert.False(t, ok, "a rejected conditional write drops the stale entry")
}

func TestBookSeatsOnCacheMissWarmsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 10)
	f.cache.Clear()

	res, err := f.svc.BookSeats(ctx, ev.ID, "u1", 3)
	require.NoError(t, err)
	cached, ok := f.cache.Get(ev.ID)
	require.True(t, ok)
	assert.Equal(t, res.Event.AvailableSeats, cached)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.event(t, 10)
	f.cache.Clear()

	got, err := f.svc.CheckAvailability(ctx, ev.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, Availability{Available: true, AvailableSeats: 10, Source: SourceStore}, got)

	got, err = f.svc.CheckAvailability(ctx, ev.ID, 11)
	require.NoError(t, err)
	assert.Equal(t, Availability{Available: false, AvailableSeats: 10, Source: SourceCache}, got)

	got, err = f.svc.CheckAvailability(ctx, "missing", 1)
	require.NoError(t, err)
	assert.Equal(t, Availability{Available: false, AvailableSeats: 0, Source: SourceStore}, got)

	_, err = f.svc.CheckAvailability(ctx, ev.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 10, f.available(t, ev.ID))
}

type countingInventory struct {
	*memory.Store
	gets    atomic.Int32
	release chan struct{}
}

func (c *countingInventory) Get(ctx context.Context, id string) (*model.Event, error) {
	c.gets.Add(1)
	<-c.release
	return c.Store.Get(ctx, id)
}

func TestCheckAvailabilityCollapsesConcurrentMisses(t *testing.T) {
	store := memory.New()
	ev, err := store.Create(context.Background(), "Concert", 10)
	require.NoError(t, err)
	inv := &countingInventory{Store: store, release: make(chan struct{})}
	svc := NewReservations(inv, store, store, cache.NewAvailability(), zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.CheckAvailability(context.Background(), ev.ID, 1)
			assert.NoError(t, err)
			assert.True(t, got.Available)
		}()
	}
	// Let the callers pile up behind the first read before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(inv.release)
	wg.Wait()

	assert.LessOrEqual(t, inv.gets.Load(), int32(10))
	assert.GreaterOrEqual(t, inv.gets.Load(), int32(1))
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateEvent(ctx, "", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.CreateEvent(ctx, "Concert", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	ev := f.event(t, 10)
	cached, ok := f.cache.Get(ev.ID)
	assert.True(t, ok)
	assert.Equal(t, 10, cached)
}

func TestReadOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.event(t, 10)
	b := f.event(t, 10)

	_, err := f.svc.BookSeats(ctx, a.ID, "u1", 2)
	require.NoError(t, err)
	_, err = f.svc.BookSeats(ctx, b.ID, "u1", 3)
	require.NoError(t, err)
	_, err = f.svc.BookSeats(ctx, a.ID, "u2", 1)
	require.NoError(t, err)

	events, err := f.svc.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	_, err = f.svc.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)

	forEvent, err := f.svc.ListBookingsForEvent(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, forEvent, 2)
	_, err = f.svc.ListBookingsForEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)

	mine, err := f.svc.ListBookingsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Concert", mine[0].EventName)
}

func TestSearchEventsClampsPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.event(t, 1)
	}

	page, err := f.svc.SearchEvents(ctx, repository.EventSearchQuery{Name: "  concert ", Page: 0, PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, MaxPageSize, page.PageSize)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Events, 3)

	page, err = f.svc.SearchEvents(ctx, repository.EventSearchQuery{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Empty(t, page.Events)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, ev queue.BookingEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func TestPublishesBookingMessages(t *testing.T) {
	pub := &mockPublisher{}
	f := newFixture(t, WithPublisher(pub))
	ctx := context.Background()
	ev := f.event(t, 10)

	pub.On("Publish", mock.Anything, mock.MatchedBy(func(m queue.BookingEvent) bool {
		return m.Type == queue.QueueBookingConfirmed && m.Seats == 2 && m.AvailableSeats == 8 && m.EventName == "Concert"
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(m queue.BookingEvent) bool {
		return m.Type == queue.QueueBookingCancelled && m.AvailableSeats == 10
	})).Return(nil).Once()

	res, err := f.svc.BookSeats(ctx, ev.ID, "u1", 2)
	require.NoError(t, err)
	_, err = f.svc.CancelBooking(ctx, ev.ID, res.Booking.ID, "u1")
	require.NoError(t, err)

	pub.AssertExpectations(t)
}

func TestPublishFailureDoesNotFailBooking(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	store := memory.New()
	svc := NewReservations(store, store, store, cache.NewAvailability(), zap.New(core), WithPublisher(pub))
	ctx := context.Background()
	ev, err := svc.CreateEvent(ctx, "Concert", 10)
	require.NoError(t, err)

	_, err = svc.BookSeats(ctx, ev.ID, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("booking message not published").Len())
}

func TestOpenBreakerIsNotWarned(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(gobreaker.ErrOpenState)

	store := memory.New()
	svc := NewReservations(store, store, store, cache.NewAvailability(), zap.New(core), WithPublisher(pub))
	ctx := context.Background()
	ev, err := svc.CreateEvent(ctx, "Concert", 10)
	require.NoError(t, err)

	_, err = svc.BookSeats(ctx, ev.ID, "u1", 1)
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("booking message not published").Len())
	assert.Equal(t, 1, logs.FilterMessage("booking message dropped, broker circuit open").Len())
}

type conflictInventory struct {
	*memory.Store
}

func (conflictInventory) TryReserve(context.Context, string, int) (*model.Event, error) {
	return nil, repository.ErrConflict
}

func TestConflictMapsToInsufficientCapacity(t *testing.T) {
	store := memory.New()
	svc := NewReservations(conflictInventory{store}, store, store, cache.NewAvailability(), zaptest.NewLogger(t))
	ctx := context.Background()
	ev, err := store.Create(ctx, "Concert", 10)
	require.NoError(t, err)

	_, err = svc.BookSeats(ctx, ev.ID, "u1", 1)
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

type userStub struct {
	mock.Mock
}

func (u *userStub) GetByUsername(ctx context.Context, username string) (model.User, error) {
	args := u.Called(ctx, username)
	return args.Get(0).(model.User), args.Error(1)
}

func (u *userStub) Create(ctx context.Context, username, password, role string, cost int) (model.User, error) {
	args := u.Called(ctx, username, password, role, cost)
	return args.Get(0).(model.User), args.Error(1)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	t.Run("creates missing admin", func(t *testing.T) {
		users := memory.New().Users()
		require.NoError(t, EnsureAdmin(ctx, users, "root", "rootpw", 4, log))
		u, err := users.GetByUsername(ctx, "root")
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, u.Role)
		require.NoError(t, EnsureAdmin(ctx, users, "root", "other", 4, log))
	})

	t.Run("skips when unset", func(t *testing.T) {
		stub := &userStub{}
		require.NoError(t, EnsureAdmin(ctx, stub, "", "", 4, log))
		stub.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
	})

	t.Run("lookup failure", func(t *testing.T) {
		stub := &userStub{}
		stub.On("GetByUsername", mock.Anything, "root").Return(model.User{}, errors.New("db down"))
		assert.Error(t, EnsureAdmin(ctx, stub, "root", "pw", 4, log))
	})
}

type purgerStub struct {
	calls atomic.Int32
	err   error
}

func (p *purgerStub) PurgeExpired(context.Context, time.Duration) (int64, error) {
	p.calls.Add(1)
	return 1, p.err
}

func TestPurgeTokens(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := &purgerStub{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		PurgeTokens(ctx, p, 5*time.Millisecond, time.Hour, zap.New(core))
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PurgeTokens did not stop after cancel")
	}
	assert.NotZero(t, logs.FilterMessage("refresh token purge failed").Len())
}

// stalledInventory never answers Get until its ctx ends.
type stalledInventory struct {
	*memory.Store
	gets atomic.Int32
}

func (s *stalledInventory) Get(ctx context.Context, id string) (*model.Event, error) {
	s.gets.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCheckAvailabilityHonoursCallerDeadline(t *testing.T) {
	store := memory.New()
	ev, err := store.Create(context.Background(), "Concert", 10)
	require.NoError(t, err)
	inv := &stalledInventory{Store: store}
	svc := NewReservations(inv, store, store, cache.NewAvailability(), zaptest.NewLogger(t),
		WithReadTimeout(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = svc.CheckAvailability(ctx, ev.ID, 1)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, ErrTransactionFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = svc.BookSeats(ctx, ev.ID, "u1", 1)
	assert.ErrorIs(t, err, ErrTransactionFailure)

	bookings, err := store.ListActiveByEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestSharedReadHasItsOwnDeadline(t *testing.T) {
	store := memory.New()
	ev, err := store.Create(context.Background(), "Concert", 10)
	require.NoError(t, err)
	inv := &stalledInventory{Store: store}
	svc := NewReservations(inv, store, store, cache.NewAvailability(), zaptest.NewLogger(t),
		WithReadTimeout(30*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := svc.CheckAvailability(context.Background(), ev.ID, 1)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransactionFailure)
	case <-time.After(2 * time.Second):
		t.Fatal("store read without a caller deadline never returned")
	}
	assert.EqualValues(t, 1, inv.gets.Load())
}

func TestCancelBookingOnMissingEventKeepsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.store.Append(ctx, "ghost", "u1", 3)
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, "ghost", b.ID, "u1")
	assert.ErrorIs(t, err, ErrEventNotFound)

	active, err := f.store.ListActiveByEvent(ctx, "ghost")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
	_, ok := f.cache.Get("ghost")
	assert.False(t, ok)
}
