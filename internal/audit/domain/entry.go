package domain

import "time"

// Action names an authentication event.
type Action string

const (
	ActionLogin          Action = "login"
	ActionLogout         Action = "logout"
	ActionLogoutAll      Action = "logout_all"
	ActionRefresh        Action = "refresh"
	ActionResolve        Action = "resolve"
	ActionPasswordChange Action = "password_change"
	ActionRegister       Action = "register"
	ActionSessionsClear  Action = "sessions_clear"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one audit record of an authentication event. UserID is empty when
// the subject could not be identified.
type Entry struct {
	ID        string
	UserID    string
	SessionID string
	Action    Action
	Outcome   Outcome
	IP        string
	UserAgent string
	Error     string
	CreatedAt time.Time
}
