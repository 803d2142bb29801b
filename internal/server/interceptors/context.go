package interceptors

import "context"

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// Identity is the resolved caller of an RPC.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// WithIdentity returns a context carrying id.
// Handlers read it via IdentityFrom, GetUserID, GetRole, GetSessionID.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller identity and true if set.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.UserID, ok && id.UserID != ""
}

// GetRole returns the caller's role and true if set.
func GetRole(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.Role, ok && id.Role != ""
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.SessionID, ok && id.SessionID != ""
}
