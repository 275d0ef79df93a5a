package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// DefaultHistoryLimit applies when a History caller passes limit <= 0.
const DefaultHistoryLimit = 100

// Config selects and configures an audit backend.
type Config struct {
	Driver string
	// Path is the file or sqlite database path.
	Path string
	// DSN is the postgres connection string.
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only; 0 means driver default
	// KeepPerUser bounds the file driver's in-memory history index.
	KeepPerUser int
}
