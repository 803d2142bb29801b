package domain

import "time"

// Session represents one authenticated device or browser instance. It lives
// only in process memory and is owned by the session store.
type Session struct {
	ID          string
	UserID      string
	AccessToken string // currently valid access token
	// RefreshTokenHash is the SHA-256 digest of the current refresh token,
	// empty until one is set. The raw token is never kept.
	RefreshTokenHash string
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastActivityAt   time.Time
	ExpiresAt        time.Time // always LastActivityAt + sliding window
}

// Live reports whether the session is still within its sliding window at now.
func (s *Session) Live(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
