package config

import (
	"reflect"
	"strings"

	logx "notiprio/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// attrs for logging. Secrets (storage.dsn, sink.amqp.url, redis password)
// are reported only as "_set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Rules, newCfg.Rules) {
		changed = append(changed, "rules")
		if r, err := newCfg.RulesSnapshot(); err == nil {
			attrs = append(attrs,
				logx.String("rules.policy_version", r.PolicyVersion),
				logx.Duration("rules.dedupe_window", r.DedupeWindow),
				logx.Float64("rules.near_duplicate_threshold", r.NearDuplicateThreshold),
				logx.Int("rules.hourly_cap", r.HourlyCap),
				logx.Duration("rules.channel_cooldown", r.ChannelCooldown),
				logx.Int("rules.promo_daily_cap", r.PromoDailyCap),
				logx.Duration("rules.ai_timeout", r.AITimeout),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Advisor, newCfg.Advisor) {
		changed = append(changed, "advisor")
		if a, err := newCfg.AdvisorSettings(); err == nil {
			attrs = append(attrs,
				logx.Bool("advisor.enabled", a.Enabled),
				logx.String("advisor.kind", a.Kind),
				logx.Float64("advisor.rate_per_sec", a.RatePerSec),
			)
		}
	}

	oS, nS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.String("storage.path", strings.TrimSpace(nS.Path)),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nS.DSN) != ""),
			logx.Bool("storage.restart_required", true),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sink, newCfg.Sink) {
		changed = append(changed, "sink")
		n := derefSink(newCfg.Sink)
		attrs = append(attrs,
			logx.Bool("sink.enabled", n.Enabled),
			logx.String("sink.driver", n.Driver),
			logx.Int("sink.workers", n.Workers),
			logx.Int("sink.rate_per_sec", n.RatePerSec),
			logx.Strings("sink.verdicts", n.Verdicts),
			logx.Bool("sink.amqp_url_set", strings.TrimSpace(n.AMQP.URL) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		changed = append(changed, "metrics")
		if m, err := newCfg.MetricsSettings(); err == nil {
			attrs = append(attrs,
				logx.Bool("metrics.redis_enabled", m.Redis.Enabled),
				logx.String("metrics.redis_addr", m.Redis.Addr),
				logx.Bool("metrics.redis_password_set", m.Redis.Password != ""),
				logx.Duration("metrics.interval", m.Interval),
			)
		}
	}

	if oldCfg.Sweep != newCfg.Sweep {
		changed = append(changed, "sweep")
		attrs = append(attrs,
			logx.Bool("sweep.enabled", newCfg.Sweep.Enabled),
			logx.String("sweep.schedule", strings.TrimSpace(newCfg.Sweep.Schedule)),
			logx.String("sweep.timezone", strings.TrimSpace(newCfg.Sweep.Timezone)),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
			logx.Bool("http.pprof_token_set", strings.TrimSpace(newCfg.HTTP.PprofToken) != ""),
			logx.Bool("http.restart_required", true),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
		)
	}

	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefSink(s *SinkConfig) SinkConfig {
	if s == nil {
		return SinkConfig{}
	}
	return *s
}
