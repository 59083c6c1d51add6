// Package store provides SQLite-backed durable storage for name histories.
//
// Two tables back the store:
//   - names: append-only history rows (identifier, name, changedToAt, source)
//   - updates: one reconciliation record per identifier (last check, changed)
//
// # Ordering
//
// GetHistory orders by changedToAt ascending. SQLite sorts NULL first, so a
// first-known-name row always leads; the autoincrement "index" breaks ties.
//
// # Timestamps
//
// History instants are stored as milliseconds and metadata instants as
// seconds since the Unix epoch. Both go through a checked codec: instants
// before the epoch are rejected on write, and a negative stored value is a
// data-integrity error (ErrMalformedTimestamp), never a silent reinterpretation.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout: Config.BusyTimeout (default 16s)
//   - IMMEDIATE transactions so the seed check-then-insert holds the write lock
//   - pool of Config.MaxConnections, acquisition bounded by Config.PoolTimeout
//
// Pragmas are carried in the DSN so every pooled connection gets them.
//
// Every error returned by an exported method is a *history.Error of kind
// storage.
package store
