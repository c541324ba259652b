// ABOUTME: Audit action taxonomy and resource type names
// ABOUTME: Actions are plain strings so callers can extend the set

package audit

// Action names a kind of audited event.
type Action string

// Authentication and session actions.
const (
	ActionLoginSuccess   Action = "login_success"
	ActionLoginFailed    Action = "login_failed"
	ActionAccountLocked  Action = "account_locked"
	ActionLogout         Action = "logout"
	ActionSessionRevoked Action = "session_revoked"
)

// Clinical record actions.
const (
	ActionView             Action = "view"
	ActionCreate           Action = "create"
	ActionEdit             Action = "edit"
	ActionSign             Action = "sign"
	ActionDelete           Action = "delete"
	ActionDemographicsEdit Action = "demographics_edit"
	ActionExport           Action = "export"
)

// Administrative actions.
const (
	ActionPermissionChange Action = "permission_change"
	ActionRoleChange       Action = "role_change"
	ActionUserCreated      Action = "user_created"
	ActionUserUpdated      Action = "user_updated"
	ActionUserDeactivated  Action = "user_deactivated"
	ActionUserActivated    Action = "user_activated"
	ActionUserDeleted      Action = "user_deleted"
	ActionPasswordChanged  Action = "password_changed"
)

// Resource types used by the built-in callers.
const (
	ResourceUser        = "user"
	ResourceSession     = "session"
	ResourceClient      = "client"
	ResourceAssignment  = "client_assignment"
	ResourceSupervision = "supervision"
)
