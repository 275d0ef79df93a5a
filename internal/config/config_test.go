package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"notiprio/internal/rules"
)

const sampleYAML = `
logging:
  level: debug
  console: true
rules:
  policy_version: v7
  dedupe_window: 2m
  hourly_cap: 0
  channel_cooldown: 0s
  urgent_event_types: []
  urgent_bypass:
    hourly_cap: true
storage:
  driver: sqlite
  path: ./audit.db
sweep:
  enabled: true
  schedule: "@every 30s"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeYAMLAndRules(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	r, err := cfg.RulesSnapshot()
	if err != nil {
		t.Fatalf("RulesSnapshot: %v", err)
	}
	def := rules.Default()
	if r.PolicyVersion != "v7" || r.DedupeWindow != 2*time.Minute {
		t.Fatalf("overrides not applied: %+v", r)
	}
	if r.HourlyCap != 0 || r.ChannelCooldown != 0 {
		t.Fatalf("explicit zeros lost: cap=%d cooldown=%s", r.HourlyCap, r.ChannelCooldown)
	}
	if len(r.UrgentEventTypes) != 0 {
		t.Fatalf("empty list should clear urgent types, got %v", r.UrgentEventTypes)
	}
	if r.PromoDailyCap != def.PromoDailyCap || r.NearDuplicateThreshold != def.NearDuplicateThreshold {
		t.Fatalf("omitted fields should keep defaults: %+v", r)
	}
	if r.UrgentBypass != (rules.UrgentBypass{HourlyCap: true}) {
		t.Fatalf("UrgentBypass = %+v", r.UrgentBypass)
	}
	st, err := cfg.StorageSettings()
	if err != nil || st.Driver != "sqlite" || st.Path != "./audit.db" {
		t.Fatalf("StorageSettings = %+v, %v", st, err)
	}
	if sw := cfg.SweepSettings(); !sw.Enabled || sw.Schedule != "@every 30s" {
		t.Fatalf("SweepSettings = %+v", sw)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body string
	}{
		{"unknown json key", "c.json", `{"logging":{"level":"info"},"telegram":{}}`},
		{"unknown yaml key", "c.yml", "rules:\n  hourly_limit: 3\n"},
		{"trailing json", "c.json", `{} {}`},
		{"bad yaml", "c.yaml", "rules: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.file, []byte(tc.body)); err == nil {
				t.Fatalf("Decode(%q) succeeded, want error", tc.body)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	th := 1.5
	neg := -1
	cases := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Logging: LoggingConfig{Level: "loud"}}},
		{"threshold", Config{Rules: &RulesConfig{NearDuplicateThreshold: &th}}},
		{"negative cap", Config{Rules: &RulesConfig{HourlyCap: &neg}}},
		{"bad duration", Config{Rules: &RulesConfig{DedupeWindow: "soon"}}},
		{"negative duration", Config{Rules: &RulesConfig{DigestDelay: "-1m"}}},
		{"postgres without dsn", Config{Storage: &StorageConfig{Driver: "postgres"}}},
		{"unknown storage", Config{Storage: &StorageConfig{Driver: "mongo"}}},
		{"http advisor without endpoint", Config{Advisor: &AdvisorConfig{Enabled: true, Kind: "http"}}},
		{"http advisor bad url", Config{Advisor: &AdvisorConfig{Enabled: true, Kind: "http", Endpoint: "nope"}}},
		{"kafka without topic", Config{Sink: &SinkConfig{Enabled: true, Driver: "kafka", Kafka: KafkaConfig{Brokers: []string{"b:9092"}}}}},
		{"bad verdict", Config{Sink: &SinkConfig{Verdicts: []string{"Sometimes"}}}},
		{"redis without addr", Config{Metrics: &MetricsConfig{Redis: RedisConfig{Enabled: true}}}},
		{"bad schedule", Config{Sweep: SweepConfig{Enabled: true, Schedule: "whenever"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Fatal("Validate succeeded, want error")
			}
		})
	}
	if err := (&Config{}).Validate(); err != nil {
		t.Fatalf("empty config should be valid: %v", err)
	}
}

func TestFromRulesRoundTrip(t *testing.T) {
	t.Parallel()
	in := rules.Default()
	in.HourlyCap = 0
	in.SuppressedEventTypes = nil
	rc := FromRules(in)
	out, err := rc.ToRules()
	if err != nil {
		t.Fatalf("ToRules: %v", err)
	}
	in.SuppressedEventTypes = []string{}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch\n in=%+v\nout=%+v", in, out)
	}
}

func TestSettingsDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	h, err := cfg.HTTPSettings()
	if err != nil || h.Addr != "127.0.0.1:8080" || h.ShutdownTimeout != 5*time.Second {
		t.Fatalf("HTTPSettings = %+v, %v", h, err)
	}
	m, err := cfg.MetricsSettings()
	if err != nil || m.Service != "notiprio" || m.Interval != 30*time.Second || m.Redis.Enabled {
		t.Fatalf("MetricsSettings = %+v, %v", m, err)
	}
	a, err := cfg.AdvisorSettings()
	if err != nil || !a.Enabled || a.Kind != "hint" {
		t.Fatalf("AdvisorSettings = %+v, %v", a, err)
	}
}

func TestManagerReloadPublishes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "notiprio.json", `{"logging":{"level":"info"}}`)
	m := NewConfigManager(p)
	m.SetValidator(func(_ context.Context, c *Config) error { return c.Validate() })
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	if ok, err := m.Reload(context.Background()); err != nil || ok {
		t.Fatalf("unchanged Reload = %v, %v", ok, err)
	}

	writeFile(t, dir, "notiprio.json", `{"logging":{"level":"loud"}}`)
	if ok, err := m.Reload(context.Background()); err == nil || ok {
		t.Fatalf("invalid Reload = %v, %v; want rejection", ok, err)
	}
	if m.Get().Logging.Level != "info" {
		t.Fatalf("rejected config was committed")
	}

	writeFile(t, dir, "notiprio.json", `{"logging":{"level":"debug"}}`)
	if ok, err := m.Reload(context.Background()); err != nil || !ok {
		t.Fatalf("Reload = %v, %v", ok, err)
	}
	select {
	case c := <-sub:
		if c.Logging.Level != "debug" {
			t.Fatalf("published level = %q", c.Logging.Level)
		}
	default:
		t.Fatal("subscriber got nothing")
	}
}

func TestManagerWatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "notiprio.yaml", "logging:\n  level: info\n")
	m := NewConfigManager(p)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// The watcher may not be registered yet; keep rewriting until it sees one.
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		writeFile(t, dir, "notiprio.yaml", fmt.Sprintf("logging:\n  level: debug\n  file:\n    path: ./x%d.log\n", i))
		select {
		case c := <-sub:
			if c.Logging.Level != "debug" {
				t.Fatalf("level = %q", c.Logging.Level)
			}
			return
		case <-time.After(400 * time.Millisecond):
		case <-deadline:
			t.Fatal("watch never published")
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	cap3 := 3
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}}
	newCfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		Rules:   &RulesConfig{HourlyCap: &cap3},
		Storage: &StorageConfig{Driver: "postgres", DSN: "postgres://secret"},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	for _, want := range []string{"logging", "rules", "storage"} {
		if !slices.Contains(changed, want) {
			t.Fatalf("changed = %v, missing %s", changed, want)
		}
	}
	if slices.Contains(changed, "http") {
		t.Fatalf("http reported as changed: %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if c, _ := SummarizeConfigChange(newCfg, newCfg); len(c) != 0 {
		t.Fatalf("identical configs reported %v", c)
	}
}
