package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"notiprio/internal/domain"
	"notiprio/internal/rules"
	"notiprio/internal/sink"
	"notiprio/internal/storage"
	"notiprio/internal/sweep"
	logx "notiprio/pkg/logx"
)

// Validate checks struct tags, then every section conversion, so a config
// that passes can be applied without further errors.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := domain.Validator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.RulesSnapshot(); err != nil {
		return err
	}
	if _, err := c.AdvisorSettings(); err != nil {
		return err
	}
	if _, err := c.StorageSettings(); err != nil {
		return err
	}
	if _, err := c.SinkSettings(); err != nil {
		return err
	}
	if _, err := c.MetricsSettings(); err != nil {
		return err
	}
	if _, err := c.HTTPSettings(); err != nil {
		return err
	}
	if err := sweep.ValidateSchedule(c.Sweep.Schedule); err != nil {
		return err
	}
	return nil
}

func (c *Config) LoggerConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

// RulesSnapshot maps the rules section onto the stock rules and validates
// the result.
func (c *Config) RulesSnapshot() (rules.Config, error) {
	return c.Rules.ToRules()
}

// ToRules overlays r onto rules.Default. A nil r yields the defaults.
func (r *RulesConfig) ToRules() (rules.Config, error) {
	out := rules.Default()
	if r == nil {
		return out, nil
	}
	var err error
	if v := strings.TrimSpace(r.PolicyVersion); v != "" {
		out.PolicyVersion = v
	}
	durations := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"rules.dedupe_window", r.DedupeWindow, &out.DedupeWindow},
		{"rules.channel_cooldown", r.ChannelCooldown, &out.ChannelCooldown},
		{"rules.digest_delay", r.DigestDelay, &out.DigestDelay},
		{"rules.ai_timeout", r.AITimeout, &out.AITimeout},
		{"rules.max_clock_skew", r.MaxClockSkew, &out.MaxClockSkew},
	}
	for _, d := range durations {
		if *d.dst, err = durationOr(d.path, d.raw, *d.dst); err != nil {
			return rules.Config{}, &domain.ConfigError{Field: d.path, Message: err.Error()}
		}
	}
	if r.NearDuplicateThreshold != nil {
		out.NearDuplicateThreshold = *r.NearDuplicateThreshold
	}
	if r.StripStopWords != nil {
		out.StripStopWords = *r.StripStopWords
	}
	if r.HourlyCap != nil {
		out.HourlyCap = *r.HourlyCap
	}
	if r.PromoDailyCap != nil {
		out.PromoDailyCap = *r.PromoDailyCap
	}
	if r.SuppressedEventTypes != nil {
		out.SuppressedEventTypes = r.SuppressedEventTypes
	}
	if r.PromotionalEventTypes != nil {
		out.PromotionalEventTypes = r.PromotionalEventTypes
	}
	if r.UrgentEventTypes != nil {
		out.UrgentEventTypes = r.UrgentEventTypes
	}
	if b := r.UrgentBypass; b != nil {
		out.UrgentBypass = rules.UrgentBypass{
			NearDuplicate:   b.NearDuplicate,
			HourlyCap:       b.HourlyCap,
			ChannelCooldown: b.ChannelCooldown,
		}
	}
	out = out.Clone()
	if err := out.Validate(); err != nil {
		return rules.Config{}, err
	}
	return out, nil
}

// FromRules is the inverse of ToRules; the HTTP API renders rules with it so
// reads and writes share one shape.
func FromRules(cfg rules.Config) RulesConfig {
	th := cfg.NearDuplicateThreshold
	strip := cfg.StripStopWords
	hourly := cfg.HourlyCap
	promo := cfg.PromoDailyCap
	return RulesConfig{
		PolicyVersion:          cfg.PolicyVersion,
		DedupeWindow:           cfg.DedupeWindow.String(),
		NearDuplicateThreshold: &th,
		StripStopWords:         &strip,
		HourlyCap:              &hourly,
		ChannelCooldown:        cfg.ChannelCooldown.String(),
		PromoDailyCap:          &promo,
		DigestDelay:            cfg.DigestDelay.String(),
		SuppressedEventTypes:   nonNil(cfg.SuppressedEventTypes),
		PromotionalEventTypes:  nonNil(cfg.PromotionalEventTypes),
		UrgentEventTypes:       nonNil(cfg.UrgentEventTypes),
		UrgentBypass: &UrgentBypassConfig{
			NearDuplicate:   cfg.UrgentBypass.NearDuplicate,
			HourlyCap:       cfg.UrgentBypass.HourlyCap,
			ChannelCooldown: cfg.UrgentBypass.ChannelCooldown,
		},
		AITimeout:    cfg.AITimeout.String(),
		MaxClockSkew: cfg.MaxClockSkew.String(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}

// AdvisorSettings is the resolved advisor section.
type AdvisorSettings struct {
	Enabled    bool
	Kind       string
	Endpoint   string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

func (c *Config) AdvisorSettings() (AdvisorSettings, error) {
	a := c.Advisor
	if a == nil {
		return AdvisorSettings{Enabled: true, Kind: "hint"}, nil
	}
	out := AdvisorSettings{
		Enabled:    a.Enabled,
		Kind:       strings.ToLower(strings.TrimSpace(a.Kind)),
		Endpoint:   strings.TrimSpace(a.Endpoint),
		RatePerSec: a.RatePerSec,
		Burst:      a.Burst,
	}
	if out.Kind == "" {
		out.Kind = "hint"
	}
	var err error
	if out.Timeout, err = ParseDurationOrDefault("advisor.timeout", a.Timeout, time.Second); err != nil {
		return AdvisorSettings{}, err
	}
	if out.Kind == "http" {
		u, err := url.Parse(out.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return AdvisorSettings{}, fmt.Errorf("advisor.endpoint: invalid url %q", out.Endpoint)
		}
	}
	return out, nil
}

func (c *Config) StorageSettings() (storage.Config, error) {
	s := c.Storage
	if s == nil {
		return storage.Config{}, nil
	}
	bt, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.TrimSpace(s.Driver),
		Path:         strings.TrimSpace(s.Path),
		DSN:          strings.TrimSpace(s.DSN),
		BusyTimeout:  bt,
		MaxOpenConns: s.MaxOpenConns,
		KeepPerUser:  s.KeepPerUser,
	}, nil
}

func (c *Config) SinkSettings() (sink.Config, error) {
	s := c.Sink
	if s == nil {
		return sink.Config{}, nil
	}
	out := sink.Config{
		Enabled:    s.Enabled,
		Driver:     strings.TrimSpace(s.Driver),
		Workers:    s.Workers,
		QueueSize:  s.QueueSize,
		RatePerSec: s.RatePerSec,
		RetryMax:   s.RetryMax,
		Kafka: sink.KafkaConfig{
			Brokers: s.Kafka.Brokers,
			Topic:   strings.TrimSpace(s.Kafka.Topic),
		},
		AMQP: sink.AMQPConfig{
			URL:      strings.TrimSpace(s.AMQP.URL),
			Exchange: strings.TrimSpace(s.AMQP.Exchange),
		},
	}
	for _, v := range s.Verdicts {
		out.Verdicts = append(out.Verdicts, domain.Verdict(v))
	}
	durations := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"sink.retry_base", s.RetryBase, &out.RetryBase},
		{"sink.retry_max_delay", s.RetryMaxDelay, &out.RetryMaxDelay},
		{"sink.send_timeout", s.SendTimeout, &out.SendTimeout},
		{"sink.kafka.write_timeout", s.Kafka.WriteTimeout, &out.Kafka.WriteTimeout},
	}
	for _, d := range durations {
		v, err := ParseDurationField(d.path, d.raw)
		if err != nil {
			return sink.Config{}, err
		}
		*d.dst = v
	}
	if out.Enabled {
		switch strings.ToLower(out.Driver) {
		case "kafka":
			if len(out.Kafka.Brokers) == 0 || out.Kafka.Topic == "" {
				return sink.Config{}, errors.New("sink.kafka: brokers and topic are required")
			}
		case "amqp", "rabbitmq":
			if out.AMQP.URL == "" {
				return sink.Config{}, errors.New("sink.amqp.url is required")
			}
		}
	}
	return out, nil
}

// MetricsSettings is the resolved metrics section.
type MetricsSettings struct {
	Redis    RedisConfig
	Service  string
	Interval time.Duration
	TTL      time.Duration
}

func (c *Config) MetricsSettings() (MetricsSettings, error) {
	out := MetricsSettings{Service: "notiprio", Interval: 30 * time.Second, TTL: 2 * time.Minute}
	m := c.Metrics
	if m == nil {
		return out, nil
	}
	out.Redis = m.Redis
	out.Redis.Addr = strings.TrimSpace(m.Redis.Addr)
	if s := strings.TrimSpace(m.Service); s != "" {
		out.Service = s
	}
	var err error
	if out.Interval, err = ParseDurationOrDefault("metrics.interval", m.Interval, out.Interval); err != nil {
		return MetricsSettings{}, err
	}
	if out.TTL, err = ParseDurationOrDefault("metrics.ttl", m.TTL, out.TTL); err != nil {
		return MetricsSettings{}, err
	}
	return out, nil
}

// HTTPSettings is the resolved http section.
type HTTPSettings struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       string
	Pprof           bool
	PprofToken      string
}

func (c *Config) HTTPSettings() (HTTPSettings, error) {
	h := c.HTTP
	out := HTTPSettings{
		Addr:       strings.TrimSpace(h.Addr),
		BodyLimit:  strings.TrimSpace(h.BodyLimit),
		Pprof:      h.Pprof,
		PprofToken: strings.TrimSpace(h.PprofToken),
	}
	if out.Addr == "" {
		out.Addr = "127.0.0.1:8080"
	}
	if out.BodyLimit == "" {
		out.BodyLimit = "1M"
	}
	var err error
	if out.ReadTimeout, err = ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second); err != nil {
		return HTTPSettings{}, err
	}
	if out.WriteTimeout, err = ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 10*time.Second); err != nil {
		return HTTPSettings{}, err
	}
	if out.ShutdownTimeout, err = ParseDurationOrDefault("http.shutdown_timeout", h.ShutdownTimeout, 5*time.Second); err != nil {
		return HTTPSettings{}, err
	}
	return out, nil
}

func (c *Config) SweepSettings() sweep.Config {
	return sweep.Config{Enabled: c.Sweep.Enabled, Schedule: c.Sweep.Schedule, Timezone: c.Sweep.Timezone}
}
