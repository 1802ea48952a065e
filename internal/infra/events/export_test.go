package events

import (
	"io"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NewPublisherWithChannel builds a Publisher on a fake channel.
func NewPublisherWithChannel(ch channel, exchange string, logger *zap.Logger) *Publisher {
	return newPublisher(ch, exchange, logger)
}

// Channel exposes the channel subset to fakes.
type Channel = channel

// Dialer opens a fake connection for NewPublisherWithDialer.
type Dialer func() (io.Closer, channel, <-chan *amqp091.Error, error)

// NewPublisherWithDialer builds a Publisher that connects lazily through dial.
func NewPublisherWithDialer(dial Dialer, exchange string, logger *zap.Logger) *Publisher {
	p := newPublisher(nil, exchange, logger)
	p.dial = dialFunc(dial)
	return p
}
