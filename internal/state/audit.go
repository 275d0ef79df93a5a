package state

import (
	"context"
	"sync"

	"notiprio/internal/domain"
)

// MemoryAudit keeps audit records in process memory for the life of the
// store.
type MemoryAudit struct {
	mu     sync.RWMutex
	byUser map[string][]domain.AuditRecord
	total  int
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{byUser: map[string][]domain.AuditRecord{}}
}

func (m *MemoryAudit) Append(ctx context.Context, rec domain.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.byUser[rec.UserID] = append(m.byUser[rec.UserID], rec)
	m.total++
	m.mu.Unlock()
	return nil
}

func (m *MemoryAudit) History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.byUser[userID]
	n := len(recs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.AuditRecord, 0, n)
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

// Len is the total number of records across users.
func (m *MemoryAudit) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

func (m *MemoryAudit) Close() error { return nil }
