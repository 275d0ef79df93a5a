package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"notiprio/internal/domain"
	logx "notiprio/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, rec domain.AuditRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	resp, err := json.Marshal(rec.Response)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit(id, event_id, user_id, event_type, channel, verdict, reason_code, rules_version, latency_ms, ai_fallback, recorded_at, response)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.EventID, rec.UserID, rec.EventType, rec.Channel,
		string(rec.Response.Verdict), string(rec.Response.Reason.Code),
		rec.RulesConfigVersion, rec.LatencyMs, boolInt(rec.AIFallbackUsed),
		rec.RecordedAt.UTC().Format(time.RFC3339Nano), string(resp),
	)
	return err
}

func (s *sqliteStore) History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, user_id, event_type, channel, rules_version, latency_ms, ai_fallback, recorded_at, response
		 FROM audit WHERE user_id = ? ORDER BY seq DESC LIMIT ?`,
		userID, historyLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var (
			rec        domain.AuditRecord
			aiFallback int
			recordedAt string
			resp       string
		)
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.UserID, &rec.EventType, &rec.Channel,
			&rec.RulesConfigVersion, &rec.LatencyMs, &aiFallback, &recordedAt, &resp); err != nil {
			return nil, err
		}
		rec.AIFallbackUsed = aiFallback != 0
		if rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("audit %s recorded_at: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(resp), &rec.Response); err != nil {
			return nil, fmt.Errorf("audit %s response: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
