package password

import "errors"

var (
	// ErrWeakPassword marks a candidate that fails a strength rule.
	ErrWeakPassword = errors.New("password too weak")
	// ErrPasswordReused marks a candidate that matches a recent history entry.
	ErrPasswordReused = errors.New("password used recently")
	// ErrHistoryUnavailable marks a change rejected because history could not be read or written.
	ErrHistoryUnavailable = errors.New("password history unavailable")
)

// PolicyError is returned for every rejected password. Kind is one of the
// sentinels above; Reason is the message shown to the user.
type PolicyError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *PolicyError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *PolicyError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func weak(reason string) *PolicyError {
	return &PolicyError{Kind: ErrWeakPassword, Reason: reason}
}

func unavailable(err error) *PolicyError {
	return &PolicyError{Kind: ErrHistoryUnavailable, Reason: "password history unavailable", Err: err}
}
