// Package store provides persistent storage for chartguard using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with one interface
// per concern:
//
//   - PrincipalStore: Staff accounts, role flags, soft deletion, lockout counters
//   - SessionStore: Opaque session rows keyed by session ID
//   - RelationshipStore: Clients, client assignments, supervision edges
//   - AuditStore: The append-only audit log
//
// SQLiteStore implements all of them in a single struct (FullStore). MockStore
// is an in-memory implementation for unit tests.
//
// # Time-bounded edges
//
// Assignments and supervision edges are never deleted. An edge is active at
// time t when started_at <= t and ended_at is NULL or after t. Ending an edge
// sets ended_at; the row stays for history.
//
// # SQLite Configuration
//
// Timestamps are stored as fixed-width UTC text so string comparison in SQL
// matches chronological order. The database runs in WAL mode with foreign keys
// enforced. The audit_log table carries triggers that abort any UPDATE or
// DELETE.
//
// # Error Handling
//
// Common errors:
//
//   - ErrPrincipalNotFound: Principal missing or soft-deleted
//   - ErrUsernameExists / ErrEmailExists: Uniqueness among live principals
//   - ErrUnavailable: The database cannot be reached
//
// # Testing
//
// Use NewMockStore() for unit tests. MockStore.SetUnavailable(true) simulates
// an unreachable backend. Use NewSQLiteStore(":memory:") or a temp file for
// integration tests with real SQLite.
package store
