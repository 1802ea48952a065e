// Package events publishes ledger change notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/boddenberg/envelope-ledger/internal/infra/resilience"
	"github.com/boddenberg/envelope-ledger/internal/port"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/events")

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends LedgerEvents to a topic exchange, routed by event type.
// Calls go through a circuit breaker so a dead broker costs nothing once
// the breaker opens. A channel closed by the broker is dropped and the
// next publish dials again.
type Publisher struct {
	mu       sync.Mutex
	conn     io.Closer
	ch       channel
	dial     dialFunc
	shut     bool
	exchange string
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

var _ port.EventPublisher = (*Publisher)(nil)

// dialFunc opens a connection and a channel with the exchange declared.
// closed, when non-nil, delivers the broker's close notification.
type dialFunc func() (conn io.Closer, ch channel, closed <-chan *amqp091.Error, err error)

var errPublisherClosed = errors.New("publisher closed")

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	p := newPublisher(nil, exchange, logger)
	p.dial = amqpDialer(url, exchange)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func amqpDialer(url, exchange string) dialFunc {
	return func() (io.Closer, channel, <-chan *amqp091.Error, error) {
		conn, err := amqp091.Dial(url)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dial AMQP: %w", err)
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("open channel: %w", err)
		}

		err = ch.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, nil, fmt.Errorf("declare exchange: %w", err)
		}

		return conn, ch, ch.NotifyClose(make(chan *amqp091.Error, 1)), nil
	}
}

func newPublisher(ch channel, exchange string, logger *zap.Logger) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		breaker:  resilience.NewCircuitBreaker("amqp"),
		logger:   logger,
	}
}

// connectLocked dials a fresh connection. p.mu must be held.
func (p *Publisher) connectLocked() error {
	conn, ch, closed, err := p.dial()
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch
	if closed != nil {
		go p.watch(ch, closed)
	}
	return nil
}

// watch drops ch once the broker closes it.
func (p *Publisher) watch(ch channel, closed <-chan *amqp091.Error) {
	amqpErr, ok := <-closed

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != ch {
		return
	}
	if ok && amqpErr != nil {
		p.logger.Warn("AMQP channel closed by broker", zap.String("reason", amqpErr.Reason), zap.Int("code", amqpErr.Code))
	}
	p.dropLocked()
}

// dropLocked discards the current connection. p.mu must be held.
func (p *Publisher) dropLocked() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Publish sends evt with the event type as routing key.
func (p *Publisher) Publish(ctx context.Context, evt domain.LedgerEvent) error {
	ctx, span := tracer.Start(ctx, "Publisher.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", evt.Type),
		attribute.String("transaction.id", evt.TransactionID),
	)

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.ch == nil {
			if p.shut || p.dial == nil {
				return nil, errPublisherClosed
			}
			if err := p.connectLocked(); err != nil {
				return nil, fmt.Errorf("reconnect: %w", err)
			}
			p.logger.Info("AMQP publisher reconnected", zap.String("exchange", p.exchange))
		}
		err := p.ch.PublishWithContext(
			ctx,
			p.exchange, // exchange
			evt.Type,   // routing key
			false,      // mandatory
			false,      // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if errors.Is(err, amqp091.ErrClosed) {
			p.dropLocked()
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "amqp"}
	}
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.Debug("ledger event published",
		zap.String("type", evt.Type),
		zap.String("transaction_id", evt.TransactionID),
		zap.String("exchange", p.exchange),
	)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shut = true

	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.conn, p.ch = nil, nil
	return errors.Join(errs...)
}
