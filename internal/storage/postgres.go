package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"notiprio/internal/domain"
	logx "notiprio/pkg/logx"
)

type postgresStore struct {
	db  *sqlx.DB
	log logx.Logger
}

// auditRow maps notification_audit columns.
type auditRow struct {
	ID           string    `db:"id"`
	EventID      string    `db:"event_id"`
	UserID       string    `db:"user_id"`
	EventType    string    `db:"event_type"`
	Channel      string    `db:"channel"`
	Verdict      string    `db:"verdict"`
	ReasonCode   string    `db:"reason_code"`
	RulesVersion int64     `db:"rules_version"`
	LatencyMs    int64     `db:"latency_ms"`
	AIFallback   bool      `db:"ai_fallback"`
	RecordedAt   time.Time `db:"recorded_at"`
	Response     []byte    `db:"response"`
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	st := newPostgresStore(db, log)
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return st, nil
}

func newPostgresStore(db *sqlx.DB, log logx.Logger) *postgresStore {
	return &postgresStore{db: db, log: log}
}

func (s *postgresStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *postgresStore) Append(ctx context.Context, rec domain.AuditRecord) error {
	resp, err := json.Marshal(rec.Response)
	if err != nil {
		return err
	}
	row := auditRow{
		ID:           rec.ID,
		EventID:      rec.EventID,
		UserID:       rec.UserID,
		EventType:    rec.EventType,
		Channel:      rec.Channel,
		Verdict:      string(rec.Response.Verdict),
		ReasonCode:   string(rec.Response.Reason.Code),
		RulesVersion: rec.RulesConfigVersion,
		LatencyMs:    rec.LatencyMs,
		AIFallback:   rec.AIFallbackUsed,
		RecordedAt:   rec.RecordedAt,
		Response:     resp,
	}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO notification_audit
		   (id, event_id, user_id, event_type, channel, verdict, reason_code, rules_version, latency_ms, ai_fallback, recorded_at, response)
		 VALUES
		   (:id, :event_id, :user_id, :event_type, :channel, :verdict, :reason_code, :rules_version, :latency_ms, :ai_fallback, :recorded_at, :response)`,
		row)
	if err != nil {
		return fmt.Errorf("insert audit %s: %w", rec.ID, err)
	}
	return nil
}

func (s *postgresStore) History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, event_id, user_id, event_type, channel, verdict, reason_code, rules_version, latency_ms, ai_fallback, recorded_at, response
		 FROM notification_audit WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`,
		userID, historyLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("select audit for %s: %w", userID, err)
	}
	out := make([]domain.AuditRecord, 0, len(rows))
	for _, r := range rows {
		rec := domain.AuditRecord{
			ID:                 r.ID,
			EventID:            r.EventID,
			UserID:             r.UserID,
			EventType:          r.EventType,
			Channel:            r.Channel,
			RulesConfigVersion: r.RulesVersion,
			LatencyMs:          r.LatencyMs,
			AIFallbackUsed:     r.AIFallback,
			RecordedAt:         r.RecordedAt,
		}
		if err := json.Unmarshal(r.Response, &rec.Response); err != nil {
			return nil, fmt.Errorf("audit %s response: %w", r.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
