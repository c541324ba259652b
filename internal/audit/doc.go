// Package audit records who did what to which resource.
//
// A Sink appends events to the store's audit_log table, which the store
// keeps append-only. Logging is best-effort from the caller's point of
// view: Log returns false on failure but never an error, so an audit outage
// cannot break a login or a chart view. Failures surface through slog at
// error level and the chartguard_audit_write_failures_total counter.
//
// Packages that emit audit events depend on the Logger interface rather than
// on Sink; Discard is available where auditing is not wanted.
package audit
