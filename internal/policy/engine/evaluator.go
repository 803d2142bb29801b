package engine

import "context"

// Actions checked against the role policy.
const (
	ActionSessionsClear = "sessions.clear"
	ActionAuditRead     = "audit.read"
)

// Authorizer decides whether a role may perform an action.
type Authorizer interface {
	Allowed(ctx context.Context, role, action string) (bool, error)
}
