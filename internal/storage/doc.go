// Package storage provides durable audit log backends for the state store.
//
// Drivers:
//   - "file": append-only JSON Lines, replayed into a per-user index on open
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "postgres": PostgreSQL through pgx and sqlx
//
// An empty driver or "memory" means the caller keeps audit records in
// process memory.
package storage
