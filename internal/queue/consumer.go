package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer reads both booking queues and appends one structured entry per
// message to the audit logger.
type Consumer struct {
	url   string
	log   *zap.Logger
	audit *zap.Logger
}

// NewConsumer returns a Consumer for the broker at url.  Operational
// messages go to log, booking entries to audit.
func NewConsumer(url string, log, audit *zap.Logger) *Consumer {
	return &Consumer{url: url, log: log, audit: audit}
}

// NewAuditLogger returns a JSON zap logger appending to path, creating the
// parent directory when needed.
func NewAuditLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.Sampling = nil
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff (capped at 30s) whenever the broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("booking consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("booking consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("booking consumer: set QoS failed", zap.Error(err))
	}

	queues := []string{QueueBookingConfirmed, QueueBookingCancelled}
	deliveries := make([]<-chan amqp.Delivery, 0, len(queues))
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		deliveries = append(deliveries, msgs)
	}

	for {
		var (
			d  amqp.Delivery
			ok bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-deliveries[0]:
		case d, ok = <-deliveries[1]:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := c.handle(d.Body); err != nil {
			c.log.Error("booking consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
}

func (c *Consumer) handle(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	var msg string
	switch ev.Type {
	case QueueBookingConfirmed:
		msg = "Booking confirmed"
	case QueueBookingCancelled:
		msg = "Booking cancelled"
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	c.audit.Info(msg,
		zap.String("booking_id", ev.BookingID),
		zap.String("event_id", ev.EventID),
		zap.String("event_name", ev.EventName),
		zap.String("user_id", ev.UserID),
		zap.Int("seats", ev.Seats),
		zap.Int("available_seats", ev.AvailableSeats),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}
