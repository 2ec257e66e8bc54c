package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialAMQP(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn, nil
}

// Publisher sends BookingEvents to the durable queue named by their type.
// Each publish opens its own connection; a circuit breaker stops dialing
// an unreachable broker so that request latency is not tied to it.
type Publisher struct {
	url  string
	log  *zap.Logger
	cb   *gobreaker.CircuitBreaker
	dial dialFunc
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	return newPublisher(url, log, dialAMQP)
}

func newPublisher(url string, log *zap.Logger, dial dialFunc) *Publisher {
	settings := gobreaker.Settings{
		Name:        "RabbitMQ",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Publisher{url: url, log: log, cb: gobreaker.NewCircuitBreaker(settings), dial: dial}
}

// Publish sends ev as a persistent JSON message.  It returns
// gobreaker.ErrOpenState without touching the network while the breaker
// is open.
func (p *Publisher) Publish(ctx context.Context, ev BookingEvent) error {
	if ev.Type != QueueBookingConfirmed && ev.Type != QueueBookingCancelled {
		return fmt.Errorf("unknown booking event type %q", ev.Type)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.publish(ctx, ev.Type, body)
	})
	return err
}

func (p *Publisher) publish(ctx context.Context, queue string, body []byte) error {
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsBreakerOpen reports whether err came from an open or saturated breaker.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Nop discards every event.  It is used when the broker is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, BookingEvent) error { return nil }
