package sink

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	logx "notiprio/pkg/logx"
)

const defaultKafkaWriteTimeout = 10 * time.Second

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes decisions to one topic, partitioned by user id.
type KafkaPublisher struct {
	w     messageWriter
	topic string
	log   logx.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, log logx.Logger) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("sink.kafka.brokers cannot be empty")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("sink.kafka.topic cannot be empty")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultKafkaWriteTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	// Synchronous writes acked by the leader; Hash keeps one user on one
	// partition.
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: timeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	log.Info("kafka sink configured", logx.Strings("brokers", brokers), logx.String("topic", topic))
	return newKafkaPublisher(w, topic, log), nil
}

func newKafkaPublisher(w messageWriter, topic string, log logx.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, topic: topic, log: log.With(logx.String("comp", "sink.kafka"))}
}

func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.Key),
		Value: m.Body,
		Time:  m.At,
		Headers: []kafka.Header{
			{Key: "message_id", Value: []byte(m.ID)},
			{Key: "verdict", Value: []byte(m.Verdict)},
		},
	})
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
