// Package engine decides whether a notification is delivered now, held for
// a digest or dropped. Each call pins one rule snapshot, evaluates the
// checks in a fixed order against the user's state, and appends exactly one
// audit record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notiprio/internal/advisor"
	"notiprio/internal/dedupe"
	"notiprio/internal/domain"
	"notiprio/internal/eventbus"
	"notiprio/internal/metrics"
	"notiprio/internal/rules"
	"notiprio/internal/state"
	logx "notiprio/pkg/logx"
)

// Options wires an Engine. Rules and Store are required.
type Options struct {
	Rules   *rules.Registry
	Store   state.Store
	Advisor advisor.Advisor
	Metrics *metrics.Collector
	Bus     eventbus.Bus
	Clock   func() time.Time
	Log     logx.Logger
}

type Engine struct {
	rules   *rules.Registry
	store   state.Store
	advisor advisor.Advisor
	metrics *metrics.Collector
	bus     eventbus.Bus
	clock   func() time.Time
	log     logx.Logger
}

func New(opts Options) (*Engine, error) {
	if opts.Rules == nil {
		return nil, errors.New("engine: rules registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("engine: state store is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	e := &Engine{
		rules:   opts.Rules,
		store:   opts.Store,
		advisor: opts.Advisor,
		metrics: opts.Metrics,
		bus:     opts.Bus,
		clock:   opts.Clock,
		log:     opts.Log.With(logx.String("comp", "engine")),
	}

	e.store.SetRetention(e.rules.Current().Rules().Retention())
	e.rules.OnSwap(e.onRulesSwap)
	return e, nil
}

func (e *Engine) onRulesSwap(s *rules.Snapshot) {
	cfg := s.Rules()
	e.store.SetRetention(cfg.Retention())
	e.log.Info("rules published",
		logx.Int64("version", s.Version()),
		logx.String("policy", cfg.PolicyVersion),
	)
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypeRulesPublished,
			Data: eventbus.RulesPublished{Version: s.Version(), PolicyVersion: cfg.PolicyVersion},
		})
	}
}

// Decide evaluates ev against the current rule snapshot.
func (e *Engine) Decide(ctx context.Context, ev domain.NotificationEvent) (domain.DecisionResponse, error) {
	return e.decide(ctx, ev, e.rules.Current())
}

// DecideWith evaluates ev against a specific retained snapshot.
func (e *Engine) DecideWith(ctx context.Context, ev domain.NotificationEvent, version int64) (domain.DecisionResponse, error) {
	snap, err := e.rules.Get(version)
	if err != nil {
		return domain.DecisionResponse{}, fmt.Errorf("decide with rules v%d: %w", version, err)
	}
	return e.decide(ctx, ev, snap)
}

func (e *Engine) decide(ctx context.Context, ev domain.NotificationEvent, snap *rules.Snapshot) (domain.DecisionResponse, error) {
	started := time.Now()
	cfg := snap.Rules()

	if err := domain.ValidateEvent(ev, e.clock(), cfg.MaxClockSkew); err != nil {
		e.metrics.ObserveValidationError()
		return domain.DecisionResponse{}, err
	}

	fp := dedupe.Fingerprint(ev)
	tokens := dedupe.Tokens(ev.Text(), cfg.StripStopWords)

	var resp domain.DecisionResponse
	err := e.store.WithUser(ctx, ev.UserID, func(tx state.UserTx) error {
		now := e.clock()
		resp = evaluate(cfg, ev, tx, fp, tokens, now)
		resp.RulesVersion = snap.Version()

		fallback, outcome := e.enrich(ctx, cfg, ev, &resp)
		if outcome != metrics.AIOK {
			e.metrics.ObserveAI(outcome)
		}

		rec := domain.AuditRecord{
			ID:                 uuid.NewString(),
			EventID:            ev.ID,
			UserID:             ev.UserID,
			EventType:          ev.EventType,
			Channel:            ev.Channel,
			Response:           resp,
			RulesConfigVersion: snap.Version(),
			LatencyMs:          time.Since(started).Milliseconds(),
			AIFallbackUsed:     fallback,
			RecordedAt:         now,
		}
		if err := tx.AppendAudit(ctx, rec); err != nil {
			return err
		}

		// A duplicate must not extend the window opened by the accepted
		// event, neither through its fingerprint nor its token profile.
		markFP, markTokens := fp, tokens
		if resp.Reason.Code == domain.ReasonExactDuplicate {
			markFP, markTokens = "", nil
		}
		tx.RecordEvent(ev, markFP, markTokens, resp.Verdict, now)
		if resp.Verdict.Delivers() {
			tx.IncrementCounters(ev.Channel, cfg.IsPromotional(ev.EventType), now)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return domain.DecisionResponse{}, err
		}
		e.metrics.ObserveStoreError()
		e.log.Error("decision not recorded",
			logx.String("event_id", ev.ID),
			logx.String("user_id", ev.UserID),
			logx.Err(err),
		)
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("decide %s: %w: %w", ev.ID, domain.ErrStoreUnavailable, err)
		}
		return domain.DecisionResponse{}, err
	}

	latency := time.Since(started)
	e.metrics.ObserveDecision(resp, latency)
	if e.log.Enabled(logx.LevelDebug) {
		e.log.Debug("decision",
			logx.String("event_id", ev.ID),
			logx.String("user_id", ev.UserID),
			logx.String("verdict", string(resp.Verdict)),
			logx.String("reason", string(resp.Reason.Code)),
			logx.Strings("rules", resp.MatchedRuleIDs),
			logx.Duration("took", latency),
		)
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypeDecisionMade,
			Time: resp.DecidedAt,
			Data: eventbus.DecisionMade{Event: ev, Response: resp},
		})
	}
	return resp, nil
}

// History returns the user's audit records, most recent first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error) {
	return e.store.History(ctx, userID, limit)
}

// RecentEvents returns the user's events inside window, oldest first.
func (e *Engine) RecentEvents(userID string, window time.Duration) []domain.HistoryEntry {
	return e.store.RecentEvents(userID, window, e.clock())
}

// Rules returns a copy of the current rule snapshot.
func (e *Engine) Rules() rules.Config {
	return e.rules.Current().Config()
}

// SetRules validates and publishes cfg, returning the new version. On
// error the previous snapshot stays active.
func (e *Engine) SetRules(cfg rules.Config) (int64, error) {
	snap, err := e.rules.Publish(cfg)
	if err != nil {
		return 0, err
	}
	return snap.Version(), nil
}

// Metrics returns a snapshot of the decision counters.
func (e *Engine) Metrics() metrics.Snapshot {
	s := e.metrics.Snapshot()
	cur := e.rules.Current()
	s.UsersTracked = e.store.Users()
	s.PolicyVersion = cur.Rules().PolicyVersion
	s.RulesVersion = cur.Version()
	return s
}
