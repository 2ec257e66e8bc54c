// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/handler"
	"github.com/iliyamo/seat-booking/internal/middleware"
	"github.com/iliyamo/seat-booking/internal/model"
)

// Deps collects everything New needs.  Redis may be nil, in which case
// rate limiting and the response cache pass requests through.
type Deps struct {
	Log    *zap.Logger
	Tracer trace.Tracer
	Redis  *redis.Client

	JWTSecret   string
	APILimit    config.RateLimitConfig
	BookingRate config.RateLimitConfig
	Cache       config.CacheConfig

	Events *handler.EventHandler
	Auth   *handler.AuthHandler
	Ping   func(ctx context.Context) error
}

// New returns an Echo instance with the full API registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.Tracing(d.Tracer))
	e.Use(middleware.RequestLogger(d.Log))

	e.GET("/healthz", handler.Health(d.Ping))

	v1 := e.Group("/v1", middleware.NewTokenBucket(d.APILimit, d.Redis, d.Log))
	RegisterAuth(v1, d.Auth, d.JWTSecret)
	RegisterEvents(v1, d, middleware.NewRedisCache(d.Cache, d.Redis, d.Log))
	return e
}

// RegisterAuth registers the account endpoints.  Register, login, refresh
// and logout need no session; /me does.
func RegisterAuth(v1 *echo.Group, a *handler.AuthHandler, jwtSecret string) {
	g := v1.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	v1.GET("/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin, model.RoleUser))
}

// RegisterEvents registers event browsing, booking and admin endpoints.
func RegisterEvents(v1 *echo.Group, d Deps, responseCache echo.MiddlewareFunc) {
	h := d.Events
	authed := []echo.MiddlewareFunc{
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleUser),
	}
	admin := []echo.MiddlewareFunc{
		middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
	}
	// The booking limiter keys on the user so it must run after JWTAuth.
	booking := append(authed[:len(authed):len(authed)], middleware.NewTokenBucket(d.BookingRate, d.Redis, d.Log))

	// public
	v1.GET("/events", h.ListEvents, responseCache)
	v1.GET("/events/search", h.SearchEvents, responseCache)
	v1.GET("/events/:id", h.GetEvent)
	v1.GET("/events/:id/availability", h.CheckAvailability)

	// booking
	v1.POST("/events/:id/book", h.BookSeats, booking...)
	v1.POST("/events/:id/cancel/:bookingId", h.CancelBooking, booking...)
	v1.GET("/user/bookings", h.MyBookings, authed...)

	// admin
	v1.POST("/events", h.CreateEvent, admin...)
	v1.GET("/events/:id/bookings", h.ListEventBookings, admin...)
}
