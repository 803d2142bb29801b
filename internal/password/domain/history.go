package domain

import "time"

// HistoryEntry is one previously used password hash for a user.
type HistoryEntry struct {
	ID        string
	UserID    string
	Hash      string
	CreatedAt time.Time
}
