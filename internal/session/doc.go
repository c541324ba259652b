// Package session persists per-request session state for chartguard.
//
// A Manager turns a session ID into a *Context for one request. There is no
// global session state; two requests with the same ID each get their own
// Context and the later Save wins.
//
// # Backends
//
// Handler is the storage contract. SQLHandler keeps sessions in the SQLite
// sessions table. RedisHandler keeps each session as a Redis hash with a TTL
// and indexes sessions per principal for bulk revocation.
//
// # Lifetime
//
// Idle expiry is checked when a session is resumed: Read returns the last
// activity from before it refreshes the timestamp, and Start discards the
// session if that value is older than the lifetime. GC is housekeeping only;
// correctness does not depend on it having run.
//
// # Identity
//
// Login and Regenerate move the session to a fresh crypto/rand ID and destroy
// the old row. Logout destroys the row and leaves the Context anonymous under
// another fresh ID.
package session
