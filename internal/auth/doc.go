// Package auth verifies staff credentials and manages principal lifecycle.
//
// # Authentication
//
// Engine.Authenticate runs the checks in a fixed order:
//
//   - Lookup: an unknown or soft-deleted username waits out a fixed delay
//     before failing. Known usernames do not wait.
//   - Active: inactive principals are refused even with the right password.
//   - Lockout: a live lock refuses regardless of password. A lapsed lock is
//     cleared on the spot and the attempt proceeds.
//   - Password: a mismatch bumps the failed-attempt counter atomically and
//     locks the account once it reaches Config.MaxAttempts.
//
// Every refusal is a *Failure whose message is the same for all reasons;
// ReasonOf recovers the reason for logging and tests.
//
// # Password Hashing
//
// New hashes are Argon2id PHC strings. Legacy bcrypt hashes verify and are
// replaced with Argon2id on the next successful login, as are Argon2id hashes
// with outdated parameters.
//
// # Lifecycle
//
// CreateUser, ChangePassword, SetRoles, SetActive, DeleteUser and
// UpdateProfile validate input, persist through the store, and emit audit
// events. DeleteUser is a soft delete that also end-dates every assignment and
// supervision edge touching the principal.
//
// # Request Identity
//
// WithAuth/FromContext carry the logged-in identity through a request once a
// session has been resumed.
package auth
