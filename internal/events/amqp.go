package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"equiprent/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPChannel is the subset of *amqp.Channel used by the bridge.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPBridge forwards bus events to a topic exchange from a background queue,
// so publishers never wait on the broker.
type AMQPBridge struct {
	ch       AMQPChannel
	conn     *amqp.Connection
	exchange string
	retry    RetryPolicy
	timeout  time.Duration
	queue    chan Event
	logger   *zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// DialAMQP connects to the broker described by cfg and declares the exchange.
func DialAMQP(cfg config.AMQPConfig, logger *zerolog.Logger) (*AMQPBridge, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	retry := RetryPolicy{MaxRetries: cfg.MaxRetries, InitialDelay: cfg.InitialDelay, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	bridge, err := NewAMQPBridge(ch, cfg.Exchange, retry, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	bridge.conn = conn
	return bridge, nil
}

func NewAMQPBridge(ch AMQPChannel, exchange string, retry RetryPolicy, logger *zerolog.Logger) (*AMQPBridge, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPBridge{
		ch:       ch,
		exchange: exchange,
		retry:    retry,
		timeout:  5 * time.Second,
		queue:    make(chan Event, 256),
		logger:   logger,
	}, nil
}

// RoutingKey turns "booking_accepted" into "booking.accepted".
func RoutingKey(eventType string) string {
	return strings.Replace(eventType, "_", ".", 1)
}

// Attach subscribes the bridge to every booking event on bus.
func (b *AMQPBridge) Attach(bus *EventBus) {
	bus.SubscribeAll(b.Enqueue)
}

// Enqueue hands the event to the background publisher. A full queue drops the event.
func (b *AMQPBridge) Enqueue(event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("amqp bridge closed")
	}
	select {
	case b.queue <- *event:
		return nil
	default:
		return errors.New("amqp bridge queue full, event dropped")
	}
}

// Start launches the publishing loop. It runs until Close drains the queue;
// ctx bounds each publish.
func (b *AMQPBridge) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.logger.Info().Str("exchange", b.exchange).Msg("amqp bridge started")
		defer b.logger.Info().Msg("amqp bridge stopped")

		for event := range b.queue {
			if err := b.publish(ctx, event); err != nil {
				b.logger.Error().Err(err).Str("event_type", event.Type).Msg("publish event error")
			}
		}
	}()
}

func (b *AMQPBridge) publish(ctx context.Context, event Event) error {
	return b.retry.Do(ctx, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return b.ch.PublishWithContext(pctx, b.exchange, RoutingKey(event.Type), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         event.Type,
			Timestamp:    event.CreatedAt,
			Body:         event.Payload,
		})
	})
}

// Close stops accepting events, waits for queued ones and closes the channel.
func (b *AMQPBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	err := b.ch.Close()
	if b.conn != nil {
		if cerr := b.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
