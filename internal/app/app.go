// Package app wires the decision engine, its stores and every background
// service from one config file, and applies hot reloads.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"notiprio/internal/advisor"
	"notiprio/internal/config"
	"notiprio/internal/engine"
	"notiprio/internal/eventbus"
	"notiprio/internal/metrics"
	"notiprio/internal/rules"
	rtsup "notiprio/internal/runtime/supervisor"
	"notiprio/internal/sink"
	"notiprio/internal/state"
	"notiprio/internal/storage"
	"notiprio/internal/sweep"
	"notiprio/internal/transport/httpapi"
	logx "notiprio/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.Mem

	audit storage.Store // nil when the in-memory audit log is used
	state *state.Memory
	reg   *rules.Registry
	eng   *engine.Engine

	sink     *sink.Service
	sweeper  *sweep.Service
	reporter *metrics.RedisReporter
	rdb      *redis.Client
	http     *httpapi.Server
	notify   *systemdNotifier
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(cfg.LoggerConfig())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log)

	a := &App{cfgm: cfgm, log: log, logs: logSvc, bus: eventbus.New()}
	if err := a.build(ctx, cfg); err != nil {
		a.closeStores()
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	rc, err := cfg.RulesSnapshot()
	if err != nil {
		return err
	}
	if a.reg, err = rules.NewRegistry(rc, rules.DefaultKeep); err != nil {
		return err
	}

	sc, err := cfg.StorageSettings()
	if err != nil {
		return err
	}
	a.audit, err = storage.Open(ctx, sc, a.log)
	if err != nil {
		return fmt.Errorf("open audit storage: %w", err)
	}
	stateOpts := []state.MemoryOption{state.WithLogger(a.log)}
	if a.audit != nil {
		stateOpts = append(stateOpts, state.WithAuditLog(a.audit))
		a.log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}
	a.state = state.NewMemory(stateOpts...)

	as, err := cfg.AdvisorSettings()
	if err != nil {
		return err
	}
	a.eng, err = engine.New(engine.Options{
		Rules:   a.reg,
		Store:   a.state,
		Advisor: buildAdvisor(as, a.log),
		Bus:     a.bus,
		Log:     a.log,
	})
	if err != nil {
		return err
	}

	skc, err := cfg.SinkSettings()
	if err != nil {
		return err
	}
	pub, err := sink.Open(skc, a.log)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	a.sink = sink.New(skc, pub, a.bus, a.log)

	a.sweeper = sweep.New(cfg.SweepSettings(), a.state, a.bus, nil, a.log)

	ms, err := cfg.MetricsSettings()
	if err != nil {
		return err
	}
	if ms.Redis.Enabled {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     ms.Redis.Addr,
			Password: ms.Redis.Password,
			DB:       ms.Redis.DB,
		})
		a.reporter = metrics.NewRedisReporter(a.rdb, ms.Service, ms.Interval, ms.TTL, a.eng.Metrics, a.log)
	}

	hs, err := cfg.HTTPSettings()
	if err != nil {
		return err
	}
	a.http = httpapi.New(a.eng, hs, a.log)
	a.notify = newSystemdNotifier(cfg.Systemd, a.log)
	return nil
}

func buildAdvisor(s config.AdvisorSettings, log logx.Logger) advisor.Advisor {
	if !s.Enabled {
		return nil
	}
	var adv advisor.Advisor = advisor.Hint{}
	if s.Kind == "http" {
		adv = advisor.NewHTTP(s.Endpoint, s.Timeout)
	}
	if s.RatePerSec > 0 {
		adv = advisor.NewLimited(adv, s.RatePerSec, s.Burst)
	}
	log.Info("advisor enabled", logx.String("kind", s.Kind), logx.Float64("rate_per_sec", s.RatePerSec))
	return adv
}

func (a *App) Engine() *engine.Engine { return a.eng }

// Done is closed when the app supervisor stops (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	start := time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	sctx := a.sup.Context()

	a.sink.Start(sctx)
	if err := a.sweeper.Start(sctx); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sup.Go("http", a.http.Run)
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	if a.reporter != nil {
		a.sup.GoRestart("metrics.redis", a.reporter.Run)
	}
	if a.notify.watchdogInterval() > 0 {
		a.sup.Go("systemd.watchdog", a.notify.watchdogLoop)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if e.Type != eventbus.TypeDecisionMade {
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})

	a.notify.ready()
	a.log.Info("app started",
		logx.Int64("rules_version", a.reg.Current().Version()),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

// Stop drains the sink, stops every goroutine and closes the stores.
func (a *App) Stop(ctx context.Context) error {
	start := time.Now()
	a.notify.stopping()

	var errs []error
	a.sweeper.Stop(ctx)
	if err := a.sink.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop sink: %w", err))
	}
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("stop supervisor: %w", err))
		}
	}
	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("app stopped", logx.Duration("took", time.Since(start)))
	_ = a.logs.Close()
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close state: %w", err))
		}
	} else if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit storage: %w", err))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// reloadLoop applies every accepted config revision. Storage, HTTP and
// advisor changes need a restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.apply(last, cfg)
			last = cfg
		}
	}
}

func (a *App) apply(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(newCfg.LoggerConfig())
		case "rules":
			rc, err := newCfg.RulesSnapshot()
			if err != nil {
				a.log.Warn("rules rejected", logx.Err(err))
				continue
			}
			if _, err := a.eng.SetRules(rc); err != nil {
				a.log.Warn("rules rejected", logx.Err(err))
			}
		case "sink":
			if sc, err := newCfg.SinkSettings(); err == nil {
				a.sink.Apply(sc)
			}
		case "sweep":
			if err := a.sweeper.Apply(newCfg.SweepSettings()); err != nil {
				a.log.Warn("sweep config rejected", logx.Err(err))
			}
		case "storage", "http", "advisor", "metrics", "systemd":
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
}
