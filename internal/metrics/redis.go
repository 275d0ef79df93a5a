package metrics

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "notiprio/pkg/logx"
)

const (
	KeyPrefix             = "metrics:"
	DefaultTTL            = 2 * time.Minute
	DefaultReportInterval = 30 * time.Second
)

// Setter is the part of a redis client the reporter writes through.
type Setter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisReporter periodically writes snapshots under "metrics:<service>"
// with a TTL so a stopped instance disappears on its own.
type RedisReporter struct {
	rdb      Setter
	key      string
	ttl      time.Duration
	interval time.Duration
	source   func() Snapshot
	log      logx.Logger
}

func NewRedisReporter(rdb Setter, service string, interval, ttl time.Duration, source func() Snapshot, log logx.Logger) *RedisReporter {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "notiprio"
	}
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RedisReporter{
		rdb:      rdb,
		key:      KeyPrefix + service,
		ttl:      ttl,
		interval: interval,
		source:   source,
		log:      log.With(logx.String("comp", "metrics.redis")),
	}
}

func (r *RedisReporter) Key() string { return r.key }

// Run writes on every tick until ctx ends, then makes one final write.
func (r *RedisReporter) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = r.Report(fctx)
			cancel()
			return nil
		case <-t.C:
			if err := r.Report(ctx); err != nil {
				r.log.Warn("metrics report failed", logx.Err(err))
			}
		}
	}
}

// Report writes one snapshot.
func (r *RedisReporter) Report(ctx context.Context) error {
	data, err := json.Marshal(r.source())
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return err
	}
	r.log.Trace("metrics written", logx.String("key", r.key))
	return nil
}
