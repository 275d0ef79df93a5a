package sink

import (
	"context"
	"errors"
	"strings"

	logx "notiprio/pkg/logx"
)

// Open builds the publisher for cfg.Driver. It returns (nil, nil) when
// forwarding is disabled.
func Open(cfg Config, log logx.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "log":
		return NewLogPublisher(log), nil
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka, log)
	case "amqp", "rabbitmq":
		return NewAMQPPublisher(cfg.AMQP, log)
	default:
		return nil, errors.New("unknown sink driver: " + driver)
	}
}

// LogPublisher writes each message to the logger. Useful in development.
type LogPublisher struct {
	log logx.Logger
}

func NewLogPublisher(log logx.Logger) *LogPublisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPublisher{log: log.With(logx.String("comp", "sink.log"))}
}

func (p *LogPublisher) Publish(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.log.Info("decision",
		logx.String("id", m.ID),
		logx.String("user_id", m.Key),
		logx.String("verdict", string(m.Verdict)),
		logx.Int("bytes", len(m.Body)),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
