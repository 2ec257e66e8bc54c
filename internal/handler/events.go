package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/middleware"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/repository"
	"github.com/iliyamo/seat-booking/internal/service"
)

// Reservations is the coordinator surface used by EventHandler.
type Reservations interface {
	BookSeats(ctx context.Context, eventID, userID string, seats int) (*service.BookingResult, error)
	CancelBooking(ctx context.Context, eventID, bookingID, userID string) (*service.BookingResult, error)
	CheckAvailability(ctx context.Context, eventID string, seats int) (service.Availability, error)
	CreateEvent(ctx context.Context, name string, totalSeats int) (*model.Event, error)
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	SearchEvents(ctx context.Context, q repository.EventSearchQuery) (service.EventPage, error)
	ListBookingsForEvent(ctx context.Context, eventID string) ([]model.Booking, error)
	ListBookingsForUser(ctx context.Context, userID string) ([]model.UserBooking, error)
}

// EventHandler serves the event, availability and booking endpoints.
// Protected methods assume JWTAuth has already run.
type EventHandler struct {
	svc Reservations
	log *zap.Logger
}

func NewEventHandler(svc Reservations, log *zap.Logger) *EventHandler {
	return &EventHandler{svc: svc, log: log}
}

type createEventReq struct {
	Name       string `json:"name" validate:"required,max=200"`
	TotalSeats int    `json:"total_seats" validate:"required,min=1"`
}

type bookReq struct {
	Seats int `json:"seats" validate:"required,min=1"`
}

// bindValid binds the JSON body into dst and validates it, writing a 400
// on failure.  ok is false when a response has been written.
func bindValid(c echo.Context, dst interface{}) (ok bool, err error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return true, nil
}

// ListEvents handles GET /v1/events.
func (h *EventHandler) ListEvents(c echo.Context) error {
	events, err := h.svc.ListEvents(c.Request().Context())
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, toEventView(e))
	}
	return c.JSON(http.StatusOK, echo.Map{"events": out})
}

// SearchEvents handles GET /v1/events/search?name=&available=&page=&page_size=.
// Unparseable paging values fall back to the defaults.
func (h *EventHandler) SearchEvents(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	onlyAvailable, _ := strconv.ParseBool(c.QueryParam("available"))

	res, err := h.svc.SearchEvents(c.Request().Context(), repository.EventSearchQuery{
		Name:          c.QueryParam("name"),
		OnlyAvailable: onlyAvailable,
		Page:          page,
		PageSize:      ps,
	})
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	out := make([]eventView, 0, len(res.Events))
	for _, e := range res.Events {
		out = append(out, toEventView(e))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      out,
		"total":     res.Total,
		"page":      res.Page,
		"page_size": res.PageSize,
	})
}

// GetEvent handles GET /v1/events/:id.
func (h *EventHandler) GetEvent(c echo.Context) error {
	ev, err := h.svc.GetEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toEventView(*ev))
}

// CreateEvent handles POST /v1/events (ADMIN).
func (h *EventHandler) CreateEvent(c echo.Context) error {
	var req createEventReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	ev, err := h.svc.CreateEvent(c.Request().Context(), req.Name, req.TotalSeats)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toEventView(*ev))
}

// CheckAvailability handles GET /v1/events/:id/availability?seats=N.  The
// seat count defaults to 1.
func (h *EventHandler) CheckAvailability(c echo.Context) error {
	seats := 1
	if raw := c.QueryParam("seats"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats must be a positive integer"})
		}
		seats = n
	}
	id := c.Param("id")
	av, err := h.svc.CheckAvailability(c.Request().Context(), id, seats)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":        id,
		"requested_seats": seats,
		"available":       av.Available,
		"available_seats": av.AvailableSeats,
		"source":          av.Source,
	})
}

// BookSeats handles POST /v1/events/:id/book.
func (h *EventHandler) BookSeats(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req bookReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	res, err := h.svc.BookSeats(c.Request().Context(), c.Param("id"), userID, req.Seats)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, bookingResultView{
		Booking: toBookingView(res.Booking),
		Event:   toEventView(res.Event),
	})
}

// CancelBooking handles POST /v1/events/:id/cancel/:bookingId.  Only the
// booking's owner may cancel it; any other caller sees 404.
func (h *EventHandler) CancelBooking(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	res, err := h.svc.CancelBooking(c.Request().Context(), c.Param("id"), c.Param("bookingId"), userID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, bookingResultView{
		Booking: toBookingView(res.Booking),
		Event:   toEventView(res.Event),
	})
}

// ListEventBookings handles GET /v1/events/:id/bookings (ADMIN).
func (h *EventHandler) ListEventBookings(c echo.Context) error {
	bookings, err := h.svc.ListBookingsForEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	out := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingView(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// MyBookings handles GET /v1/user/bookings.
func (h *EventHandler) MyBookings(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookings, err := h.svc.ListBookingsForUser(c.Request().Context(), userID)
	if err != nil {
		return writeServiceError(c, h.log, err)
	}
	out := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		v := toBookingView(b.Booking)
		v.EventName = b.EventName
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}
