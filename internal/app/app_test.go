package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"notiprio/internal/config"
	"notiprio/internal/domain"
	logx "notiprio/pkg/logx"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "notiprio.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestAppLifecycle(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, `
logging:
  level: error
rules:
  hourly_cap: 2
storage:
  driver: sqlite
  path: `+filepath.Join(dir, "audit.db")+`
sink:
  enabled: true
  driver: log
sweep:
  enabled: true
  schedule: "@every 1h"
http:
  addr: `+freeAddr(t)+`
`)
	ctx := context.Background()
	a, err := New(ctx, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ev := domain.NotificationEvent{
		ID: "e1", UserID: "u1", Channel: "email", EventType: "digest",
		Title: "Weekly digest", CreatedAt: time.Now().UTC(),
	}
	resp, err := a.Engine().Decide(ctx, ev)
	if err != nil || resp.Verdict != domain.VerdictNow {
		t.Fatalf("Decide = %+v, %v", resp, err)
	}
	recs, err := a.Engine().History(ctx, "u1", 10)
	if err != nil || len(recs) != 1 {
		t.Fatalf("History = %d records, %v", len(recs), err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeConfig(t, dir, "rules:\n  near_duplicate_threshold: 2\n")
	if _, err := New(context.Background(), p); err == nil {
		t.Fatal("New accepted an invalid config")
	}
}

func TestApplyRulesReload(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "logging:\n  level: error\n")
	a, err := New(context.Background(), p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.closeStores()

	cap1 := 1
	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	newCfg.Rules = &config.RulesConfig{HourlyCap: &cap1, PolicyVersion: "v9"}
	a.apply(oldCfg, &newCfg)

	got := a.Engine().Rules()
	if got.HourlyCap != 1 || got.PolicyVersion != "v9" || got.Version != 2 {
		t.Fatalf("rules after reload = %+v", got)
	}
}

func TestSystemdNotifier(t *testing.T) {
	t.Parallel()
	var states []string
	n := newSystemdNotifier(config.SystemdConfig{Notify: true, Watchdog: true}, logx.Nop())
	n.notify = func(_ bool, state string) (bool, error) {
		states = append(states, state)
		return true, nil
	}
	n.watchdog = func(bool) (time.Duration, error) { return 40 * time.Millisecond, nil }

	n.ready()
	if got := n.watchdogInterval(); got != 20*time.Millisecond {
		t.Fatalf("watchdogInterval = %s", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	_ = n.watchdogLoop(ctx)
	n.stopping()

	joined := strings.Join(states, "|")
	if !strings.HasPrefix(joined, "READY=1|WATCHDOG=1") || !strings.HasSuffix(joined, "STOPPING=1") {
		t.Fatalf("states = %v", states)
	}

	off := newSystemdNotifier(config.SystemdConfig{}, logx.Nop())
	off.notify = func(bool, string) (bool, error) {
		t.Fatal("notify called while disabled")
		return false, nil
	}
	off.ready()
	if off.watchdogInterval() != 0 {
		t.Fatal("watchdog enabled while notify is off")
	}
}
