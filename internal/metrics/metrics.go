// Package metrics defines the Prometheus counters for chartguard. It is the
// single source of truth for metric names, labels, and help strings.
//
// Metrics are registered with the default registry on package init via
// promauto; importing the package is enough.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chartguard"

// AuditWriteFailuresTotal counts audit events that could not be persisted.
// Label:
//   - action: the audit action that was dropped (e.g. "view", "login_failed")
var AuditWriteFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_write_failures_total",
		Help:      "Total number of audit events that failed to persist.",
	},
	[]string{"action"},
)

// AuthAttemptsTotal counts authentication attempts.
// Label:
//   - outcome: "success", "unknown_user", "wrong_password", "locked", "inactive", or "error"
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of authentication attempts, by outcome.",
	},
	[]string{"outcome"},
)

// AccountLockoutsTotal counts accounts locked after too many failures.
var AccountLockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_lockouts_total",
		Help:      "Total number of accounts locked after repeated failed logins.",
	},
)

// AccessDenialsTotal counts denied access checks.
// Label:
//   - reason: "no_assignment", "wrong_role_for_scope", "inactive_principal", or "store_error"
var AccessDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_denials_total",
		Help:      "Total number of denied client access checks, by reason.",
	},
	[]string{"reason"},
)

// SessionsCollectedTotal counts idle sessions removed by garbage collection.
var SessionsCollectedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_collected_total",
		Help:      "Total number of idle sessions removed by garbage collection.",
	},
)

// SessionsRevokedTotal counts sessions destroyed by administrative revocation.
var SessionsRevokedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_revoked_total",
		Help:      "Total number of sessions destroyed by principal revocation.",
	},
)
