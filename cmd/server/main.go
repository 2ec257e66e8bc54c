package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/cache"
	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/database"
	"github.com/iliyamo/seat-booking/internal/handler"
	"github.com/iliyamo/seat-booking/internal/logger"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/repository"
	"github.com/iliyamo/seat-booking/internal/repository/memory"
	"github.com/iliyamo/seat-booking/internal/router"
	"github.com/iliyamo/seat-booking/internal/service"
	"github.com/iliyamo/seat-booking/internal/telemetry"
)

// stores groups the storage implementations selected by STORE_DRIVER.
type stores struct {
	events   service.Inventory
	bookings service.Ledger
	tx       service.Transactor
	users    handler.UserStore
	tokens   handler.TokenStore
	purger   service.TokenPurger
	ping     func(ctx context.Context) error
	close    func() error
}

func openStores(ctx context.Context, cfg config.StoreConfig) (*stores, error) {
	if cfg.Driver == config.DriverMemory {
		m := memory.New(memory.WithTxTimeout(cfg.TxTimeout))
		return &stores{
			events:   m,
			bookings: m,
			tx:       m,
			users:    m.Users(),
			tokens:   m,
			purger:   m,
			ping:     func(context.Context) error { return nil },
			close:    func() error { return nil },
		}, nil
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	tokens := repository.NewTokenRepo(db)
	return &stores{
		events:   repository.NewEventRepo(db),
		bookings: repository.NewBookingRepo(db),
		tx:       repository.NewTransactor(db, cfg.TxTimeout),
		users:    repository.NewUserRepo(db),
		tokens:   tokens,
		purger:   tokens,
		ping:     pinger(db),
		close:    db.Close,
	}, nil
}

func pinger(db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Env)
	if err != nil {
		zl.Fatal("telemetry init failed", zap.Error(err))
	}

	st, err := openStores(ctx, cfg.Store)
	if err != nil {
		zl.Fatal("store init failed", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() { _ = st.close() }()
	zl.Info("store ready", zap.String("driver", cfg.Store.Driver))

	go service.PurgeTokens(ctx, st.purger, time.Hour, 24*time.Hour, zl)

	rdb := config.NewRedisClient()
	if rdb == nil {
		zl.Info("redis disabled; rate limiting and response cache off")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	var pub service.Publisher = queue.Nop{}
	if cfg.Broker.Enabled {
		pub = queue.NewPublisher(cfg.Broker.URL, zl)
		audit, err := queue.NewAuditLogger("logs/booking.log")
		if err != nil {
			zl.Fatal("audit log init failed", zap.Error(err))
		}
		defer func() { _ = audit.Sync() }()
		go func() {
			if err := queue.NewConsumer(cfg.Broker.URL, zl, audit).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	svc := service.NewReservations(st.events, st.bookings, st.tx, cache.NewAvailability(), zl,
		service.WithPublisher(pub),
		service.WithTracer(tel.Tracer()),
	)

	if err := service.EnsureAdmin(ctx, st.users, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, cfg.Auth.BcryptCost, zl); err != nil {
		zl.Fatal("admin seed failed", zap.Error(err))
	}

	e := router.New(router.Deps{
		Log:         zl,
		Tracer:      tel.Tracer(),
		Redis:       rdb,
		JWTSecret:   cfg.Auth.JWTSecret,
		APILimit:    config.LoadRateLimitConfig("RATE_LIMIT", config.APIRateLimitDefaults),
		BookingRate: config.LoadRateLimitConfig("BOOKING_RATE_LIMIT", config.BookingRateLimitDefaults),
		Cache:       config.LoadCacheConfig(),
		Events:      handler.NewEventHandler(svc, zl),
		Auth:        handler.NewAuthHandler(cfg.Auth, st.users, st.tokens, zl),
		Ping:        st.ping,
	})

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		zl.Error("telemetry shutdown", zap.Error(err))
	}
}
