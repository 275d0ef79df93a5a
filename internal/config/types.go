package config

// Config is the on-disk configuration. Keys are snake_case and every duration
// is a Go duration string (e.g. "500ms", "10s", "5m").
//
// Sections that are pointers may be omitted entirely; the runtime then uses
// its defaults (see convert.go).
type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Rules   *RulesConfig   `json:"rules,omitempty"`
	Advisor *AdvisorConfig `json:"advisor,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Sink    *SinkConfig    `json:"sink,omitempty"`
	Metrics *MetricsConfig `json:"metrics,omitempty"`
	Sweep   SweepConfig    `json:"sweep"`
	HTTP    HTTPConfig     `json:"http"`
	Systemd SystemdConfig  `json:"systemd"`
}

type LoggingConfig struct {
	Level   string      `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RulesConfig is the file form of the rule snapshot.
//
// Omitted fields fall back to the stock rules. An explicit zero keeps its
// meaning: "hourly_cap": 0 disables the hourly cap, "channel_cooldown": "0s"
// disables the cooldown, and an empty list clears the stock list.
type RulesConfig struct {
	PolicyVersion string `json:"policy_version,omitempty"`

	DedupeWindow           string   `json:"dedupe_window,omitempty"`
	NearDuplicateThreshold *float64 `json:"near_duplicate_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	StripStopWords         *bool    `json:"strip_stop_words,omitempty"`

	HourlyCap       *int   `json:"hourly_cap,omitempty" validate:"omitempty,gte=0"`
	ChannelCooldown string `json:"channel_cooldown,omitempty"`
	PromoDailyCap   *int   `json:"promo_daily_cap,omitempty" validate:"omitempty,gte=0"`
	DigestDelay     string `json:"digest_delay,omitempty"`

	SuppressedEventTypes  []string `json:"suppressed_event_types,omitempty"`
	PromotionalEventTypes []string `json:"promotional_event_types,omitempty"`
	UrgentEventTypes      []string `json:"urgent_event_types,omitempty"`

	UrgentBypass *UrgentBypassConfig `json:"urgent_bypass,omitempty"`

	AITimeout    string `json:"ai_timeout,omitempty"`
	MaxClockSkew string `json:"max_clock_skew,omitempty"`
}

type UrgentBypassConfig struct {
	NearDuplicate   bool `json:"near_duplicate"`
	HourlyCap       bool `json:"hourly_cap"`
	ChannelCooldown bool `json:"channel_cooldown"`
}

// AdvisorConfig selects the reason enricher.
//
// Defaults (when the section is omitted): enabled with the local "hint"
// advisor. The per-call deadline is rules.ai_timeout; Timeout here only
// bounds the HTTP client.
type AdvisorConfig struct {
	Enabled    bool    `json:"enabled"`
	Kind       string  `json:"kind,omitempty" validate:"omitempty,oneof=hint http"`
	Endpoint   string  `json:"endpoint,omitempty" validate:"required_if=Kind http"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
	Burst      int     `json:"burst,omitempty" validate:"gte=0"`
}

// StorageConfig controls the durable audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./notiprio.db" }
type StorageConfig struct {
	Driver       string `json:"driver" validate:"omitempty,oneof=memory none file sqlite postgres"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty" validate:"required_if=Driver postgres"` // never logged
	BusyTimeout  string `json:"busy_timeout,omitempty"`                               // sqlite only
	MaxOpenConns int    `json:"max_open_conns,omitempty" validate:"gte=0"`
	KeepPerUser  int    `json:"keep_per_user,omitempty" validate:"gte=0"`
}

// SinkConfig controls forwarding of decisions to a downstream transport.
//
// Defaults (when fields are omitted/zero):
//   - driver: "log"
//   - verdicts: ["Now", "Later"]
//   - workers: 2, queue_size: 1024, rate_per_sec: 200
//   - retry_base: "200ms", retry_max_delay: "5s"
//   - send_timeout: "10s"
type SinkConfig struct {
	Enabled       bool     `json:"enabled"`
	Driver        string   `json:"driver,omitempty" validate:"omitempty,oneof=log kafka amqp rabbitmq"`
	Verdicts      []string `json:"verdicts,omitempty" validate:"dive,oneof=Now Later Never"`
	Workers       int      `json:"workers,omitempty" validate:"gte=0"`
	QueueSize     int      `json:"queue_size,omitempty" validate:"gte=0"`
	RatePerSec    int      `json:"rate_per_sec,omitempty" validate:"gte=0"`
	RetryMax      int      `json:"retry_max,omitempty" validate:"gte=0"`
	RetryBase     string   `json:"retry_base,omitempty"`
	RetryMaxDelay string   `json:"retry_max_delay,omitempty"`
	SendTimeout   string   `json:"send_timeout,omitempty"`

	Kafka KafkaConfig `json:"kafka"`
	AMQP  AMQPConfig  `json:"amqp"`
}

type KafkaConfig struct {
	Brokers      []string `json:"brokers,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	WriteTimeout string   `json:"write_timeout,omitempty"`
}

type AMQPConfig struct {
	URL      string `json:"url,omitempty"` // never logged
	Exchange string `json:"exchange,omitempty"`
}

// MetricsConfig controls periodic snapshot export to Redis.
type MetricsConfig struct {
	Redis    RedisConfig `json:"redis"`
	Service  string      `json:"service,omitempty"`
	Interval string      `json:"interval,omitempty"`
	TTL      string      `json:"ttl,omitempty"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr,omitempty" validate:"required_if=Enabled true"`
	Password string `json:"password,omitempty"` // never logged
	DB       int    `json:"db,omitempty" validate:"gte=0"`
}

// SweepConfig controls periodic pruning of idle per-user state.
type SweepConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // cron spec; default "@every 1m"
	Timezone string `json:"timezone,omitempty"`
}

// HTTPConfig controls the JSON API listener.
//
// Defaults: addr "127.0.0.1:8080", read/write timeouts "10s",
// shutdown_timeout "5s".
type HTTPConfig struct {
	Addr            string `json:"addr,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	BodyLimit       string `json:"body_limit,omitempty"` // echo size string, e.g. "1M"

	// Pprof mounts net/http/pprof under /debug/pprof. Prefer a loopback
	// addr or set pprof_token.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"` // never logged
}

// SystemdConfig controls sd_notify integration. It is a no-op when the
// process is not started by systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}
