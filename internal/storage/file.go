package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"notiprio/internal/domain"
	logx "notiprio/pkg/logx"
)

const defaultKeepPerUser = 1000

// fileStore appends audit records to <prefix>.audit.jsonl. On open the
// file is replayed to rebuild a bounded per-user index that serves
// History.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	auditFile *os.File
	w         *bufio.Writer

	byUser map[string][]domain.AuditRecord
	keep   int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	auditPath := filepath.Join(dir, base) + ".audit.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	keep := cfg.KeepPerUser
	if keep <= 0 {
		keep = defaultKeepPerUser
	}
	s := &fileStore{log: log, byUser: map[string][]domain.AuditRecord{}, keep: keep}

	n, err := s.replay(auditPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if n > 0 {
		log.Info("audit log replayed", logx.Int("records", n), logx.Int("users", len(s.byUser)))
	}

	f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.auditFile = f
	s.w = bufio.NewWriter(f)
	return s, nil
}

func (s *fileStore) replay(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 4<<20)
	n := 0
	for sc.Scan() {
		var rec domain.AuditRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			s.log.Debug("skipping unreadable audit line", logx.Err(err))
			continue
		}
		if rec.UserID == "" {
			continue
		}
		s.index(rec)
		n++
	}
	return n, sc.Err()
}

func (s *fileStore) index(rec domain.AuditRecord) {
	recs := append(s.byUser[rec.UserID], rec)
	if len(recs) > s.keep {
		recs = append(recs[:0:0], recs[len(recs)-s.keep:]...)
	}
	s.byUser[rec.UserID] = recs
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err1 := s.w.Flush()
	err2 := s.auditFile.Close()
	s.auditFile = nil
	if err1 != nil {
		return err1
	}
	return err2
}

// Append writes rec and flushes before returning so an acknowledged
// decision is on disk.
func (s *fileStore) Append(ctx context.Context, rec domain.AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.index(rec)
	return nil
}

func (s *fileStore) History(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = historyLimit(limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.byUser[userID]
	out := make([]domain.AuditRecord, 0, min(limit, len(recs)))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}
