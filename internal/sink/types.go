package sink

import (
	"context"
	"time"

	"notiprio/internal/domain"
)

// Config controls the forwarding pipeline.
type Config struct {
	Enabled       bool
	Driver        string // "log", "kafka" or "amqp"
	Verdicts      []domain.Verdict
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration

	Kafka KafkaConfig
	AMQP  AMQPConfig
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

// Message is one forwarded decision. Key is the user id so a partitioned
// transport keeps a user's decisions in order.
type Message struct {
	ID      string
	Key     string
	Verdict domain.Verdict
	At      time.Time
	Body    []byte
}

// Payload is the JSON body of a Message.
type Payload struct {
	Event    domain.NotificationEvent `json:"event"`
	Decision domain.DecisionResponse  `json:"decision"`
}

// Publisher delivers messages to one transport.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Stats counts pipeline outcomes since start.
type Stats struct {
	Queued    uint64 `json:"queued"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Skipped   uint64 `json:"skipped"`
}
