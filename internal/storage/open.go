package storage

import (
	"context"
	"errors"
	"strings"

	"notiprio/internal/domain"
	logx "notiprio/pkg/logx"
)

// Store is a durable, append-only audit log.
type Store interface {
	Append(ctx context.Context, rec domain.AuditRecord) error
	History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) when audit records should stay in memory.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "memory" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
