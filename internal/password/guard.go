// Package password enforces password strength and prevents reuse of recent
// passwords.
package password

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"donorhub/backend/internal/password/domain"
	"donorhub/backend/internal/password/repository"
)

const (
	// DefaultCheckDepth is how many recent hashes a new password is compared against.
	DefaultCheckDepth = 3
	// DefaultRetain is how many history entries are kept per user.
	DefaultRetain = 5
)

// Hasher is the subset of security.Hasher the guard needs.
type Hasher interface {
	Hash(password []byte) (string, error)
	Verify(plaintext, hash string) bool
}

// Guard validates candidate passwords and maintains per-user history.
type Guard struct {
	hasher     Hasher
	history    repository.Repository
	checkDepth int
	retain     int
	nowF       func() time.Time
	logger     *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithDepth overrides how many entries are checked and retained. Values below 1
// are ignored and retain is raised to at least check.
func WithDepth(check, retain int) Option {
	return func(g *Guard) {
		if check > 0 {
			g.checkDepth = check
		}
		if retain > 0 {
			g.retain = retain
		}
		if g.retain < g.checkDepth {
			g.retain = g.checkDepth
		}
	}
}

// WithClock replaces the wall clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.nowF = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard returns a Guard using hasher for hashing and comparison and history for persistence.
func NewGuard(hasher Hasher, history repository.Repository, opts ...Option) *Guard {
	g := &Guard{
		hasher:     hasher,
		history:    history,
		checkDepth: DefaultCheckDepth,
		retain:     DefaultRetain,
		nowF:       func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateStrength applies the strength rules. See the package-level ValidateStrength.
func (g *Guard) ValidateStrength(candidate string) error {
	return ValidateStrength(candidate)
}

// CheckHistory rejects candidate if it matches any of the user's most recent
// entries. A history read failure rejects the candidate.
func (g *Guard) CheckHistory(ctx context.Context, userID, candidate string) error {
	entries, err := g.history.ListRecent(ctx, userID, g.checkDepth)
	if err != nil {
		g.logger.Error("password history read failed", "user_id", userID, "error", err)
		return unavailable(err)
	}
	for _, e := range entries {
		if g.hasher.Verify(candidate, e.Hash) {
			return &PolicyError{Kind: ErrPasswordReused, Reason: fmt.Sprintf("password must not match any of your last %d passwords", g.checkDepth)}
		}
	}
	return nil
}

// Commit appends hash to the user's history and prunes entries beyond the
// retention cap, oldest first.
func (g *Guard) Commit(ctx context.Context, userID, hash string) error {
	entry := &domain.HistoryEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Hash:      hash,
		CreatedAt: g.nowF(),
	}
	if err := g.history.Create(ctx, entry); err != nil {
		g.logger.Error("password history write failed", "user_id", userID, "error", err)
		return unavailable(err)
	}
	if _, err := g.history.PruneKeepNewest(ctx, userID, g.retain); err != nil {
		g.logger.Error("password history prune failed", "user_id", userID, "error", err)
		return unavailable(err)
	}
	return nil
}

// CheckAndHash validates strength, checks history when userID is set and
// hashes the candidate. Nothing is committed; callers persist the hash first
// and then Commit it.
func (g *Guard) CheckAndHash(ctx context.Context, candidate, userID string) (string, error) {
	if err := ValidateStrength(candidate); err != nil {
		return "", err
	}
	if userID != "" {
		if err := g.CheckHistory(ctx, userID, candidate); err != nil {
			return "", err
		}
	}
	hash, err := g.hasher.Hash([]byte(candidate))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// HashWithHistory is CheckAndHash followed, when userID is set, by Commit.
// Registration passes an empty userID and commits once the user exists.
func (g *Guard) HashWithHistory(ctx context.Context, candidate, userID string) (string, error) {
	hash, err := g.CheckAndHash(ctx, candidate, userID)
	if err != nil {
		return "", err
	}
	if userID != "" {
		if err := g.Commit(ctx, userID, hash); err != nil {
			return "", err
		}
	}
	return hash, nil
}
