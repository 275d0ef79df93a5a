package sink

import (
	"context"
	"errors"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	logx "notiprio/pkg/logx"
)

const defaultExchange = "notiprio.decisions"

// channelPublisher is the part of *amqp.Channel the publisher uses.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes to a durable topic exchange with routing key
// "decision.<verdict>".
type AMQPPublisher struct {
	mu       sync.Mutex // one publisher per channel at a time
	conn     *amqp.Connection
	ch       channelPublisher
	exchange string
	log      logx.Logger
}

func NewAMQPPublisher(cfg AMQPConfig, log logx.Logger) (*AMQPPublisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("sink.amqp.url cannot be empty")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = defaultExchange
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	p := newAMQPPublisher(ch, exchange, log)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channelPublisher, exchange string, log logx.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, log: log.With(logx.String("comp", "sink.amqp"))}
}

// RoutingKey is the topic key for a message.
func RoutingKey(m Message) string {
	return "decision." + strings.ToLower(string(m.Verdict))
}

func (p *AMQPPublisher) Publish(ctx context.Context, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(m), false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     m.ID,
		CorrelationId: m.Key,
		Timestamp:     m.At,
		Body:          m.Body,
	})
}

func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
