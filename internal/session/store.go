// Package session provides the in-memory store of live authenticated sessions,
// with reverse indices by user and by refresh token and a background sweep of
// expired entries.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"donorhub/backend/internal/security"
	"donorhub/backend/internal/session/domain"
)

const (
	// SlidingWindow is how long a session stays live after its last activity.
	SlidingWindow = 15 * time.Minute
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 5 * time.Minute
)

var (
	// ErrDuplicateSession is returned by Create when the supplied id is taken.
	ErrDuplicateSession = errors.New("session id already in use")
	// ErrMissingUser is returned by Create when no owning user is given.
	ErrMissingUser = errors.New("session requires a user id")
)

// Eviction reasons reported to the eviction hook.
const (
	EvictExpired   = "expired"
	EvictSweep     = "sweep"
	EvictLogout    = "logout"
	EvictLogoutAll = "logout_all"
	EvictClear     = "clear"
)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock replaces the wall clock; used by tests to move time.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.nowF = now
		}
	}
}

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.sweepEvery = d
		}
	}
}

// WithLogger sets the logger used for sweep reports.
func WithLogger(l *slog.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEvictionHook registers fn to be called, outside the store lock, with the
// number of sessions removed and why.
func WithEvictionHook(fn func(reason string, n int)) Option {
	return func(s *MemoryStore) {
		s.onEvict = fn
	}
}

// MemoryStore is the single source of truth for session liveness. One mutex
// guards the primary table and both indices, so readers never observe a
// session in one without the other.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	byUser    map[string]map[string]struct{}
	byRefresh map[string]string // refresh token digest -> session id

	window     time.Duration
	sweepEvery time.Duration
	nowF       func() time.Time
	logger     *slog.Logger
	onEvict    func(reason string, n int)

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewMemoryStore returns an empty store. Call Start to run the background
// sweep and Stop to end it.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions:   make(map[string]*domain.Session),
		byUser:     make(map[string]map[string]struct{}),
		byRefresh:  make(map[string]string),
		window:     SlidingWindow,
		sweepEvery: DefaultSweepInterval,
		nowF:       time.Now,
		logger:     slog.Default(),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the periodic sweep. Calling it more than once is a no-op.
func (s *MemoryStore) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.sweepLoop()
	})
}

// Stop ends the periodic sweep and waits for it to exit. Safe to call more
// than once and before Start.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *MemoryStore) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("session sweep", "evicted", n)
			}
		case <-s.stop:
			return
		}
	}
}

// Create inserts a new live session for userID. When sessionID is empty a
// random one is allocated. The returned value is a copy.
func (s *MemoryStore) Create(userID, accessToken, ip, userAgent, sessionID string) (*domain.Session, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	now := s.nowF()
	sess := &domain.Session{
		ID:             sessionID,
		UserID:         userID,
		AccessToken:    accessToken,
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.window),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sessionID]; exists {
		return nil, ErrDuplicateSession
	}
	s.sessions[sessionID] = sess
	ids := s.byUser[userID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.byUser[userID] = ids
	}
	ids[sessionID] = struct{}{}
	out := *sess
	return &out, nil
}

// SetRefreshToken records the digest of refreshToken as the session's current
// refresh token and indexes it, replacing any earlier one. Returns false if
// the session is absent or expired.
func (s *MemoryStore) SetRefreshToken(sessionID, refreshToken string) bool {
	expired := false
	ok := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, live := s.liveLocked(sessionID, s.nowF())
		if !live {
			expired = sess != nil
			return false
		}
		if sess.RefreshTokenHash != "" {
			s.unindexRefreshLocked(sess)
		}
		sess.RefreshTokenHash = ""
		if refreshToken != "" {
			sess.RefreshTokenHash = security.HashRefreshToken(refreshToken)
			s.byRefresh[sess.RefreshTokenHash] = sessionID
		}
		return true
	}()
	if expired {
		s.notify(EvictExpired, 1)
	}
	return ok
}

// SetAccessToken replaces the session's current access token without
// extending its expiry. Returns false if the session is absent or expired.
func (s *MemoryStore) SetAccessToken(sessionID, accessToken string) bool {
	expired := false
	ok := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, live := s.liveLocked(sessionID, s.nowF())
		if !live {
			expired = sess != nil
			return false
		}
		sess.AccessToken = accessToken
		return true
	}()
	if expired {
		s.notify(EvictExpired, 1)
	}
	return ok
}

// Touch slides the session's expiry to now + window. Returns false, removing
// any stale entry, if the session is absent or already expired.
func (s *MemoryStore) Touch(sessionID string) bool {
	expired := false
	ok := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		now := s.nowF()
		sess, live := s.liveLocked(sessionID, now)
		if !live {
			expired = sess != nil
			return false
		}
		// The later deadline dominates.
		if next := now.Add(s.window); next.After(sess.ExpiresAt) {
			sess.ExpiresAt = next
			sess.LastActivityAt = now
		}
		return true
	}()
	if expired {
		s.notify(EvictExpired, 1)
	}
	return ok
}

// Get returns a copy of the session, or false if it is absent or expired.
// An expired entry is removed as a side effect.
func (s *MemoryStore) Get(sessionID string) (*domain.Session, bool) {
	var out *domain.Session
	expired := false
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, live := s.liveLocked(sessionID, s.nowF())
		if !live {
			expired = sess != nil
			return
		}
		cp := *sess
		out = &cp
	}()
	if expired {
		s.notify(EvictExpired, 1)
	}
	return out, out != nil
}

// GetByRefreshToken resolves the session currently holding refreshToken. The
// token is checked against the session's stored digest in constant time.
func (s *MemoryStore) GetByRefreshToken(refreshToken string) (*domain.Session, bool) {
	if refreshToken == "" {
		return nil, false
	}
	var out *domain.Session
	expired := false
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		key := security.HashRefreshToken(refreshToken)
		id, ok := s.byRefresh[key]
		if !ok {
			return
		}
		sess, live := s.liveLocked(id, s.nowF())
		if !live {
			expired = sess != nil
			// Orphaned index entry.
			delete(s.byRefresh, key)
			return
		}
		if !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
			delete(s.byRefresh, key)
			return
		}
		cp := *sess
		out = &cp
	}()
	if expired {
		s.notify(EvictExpired, 1)
	}
	return out, out != nil
}

// Remove deletes the session and its refresh-token index entry. Returns false
// if there was nothing to remove.
func (s *MemoryStore) Remove(sessionID string) bool {
	s.mu.Lock()
	removed := s.removeLocked(sessionID)
	s.mu.Unlock()
	if removed {
		s.notify(EvictLogout, 1)
	}
	return removed
}

// RemoveAllForUser deletes every session owned by userID and returns exactly
// how many were deleted.
func (s *MemoryStore) RemoveAllForUser(userID string) int {
	s.mu.Lock()
	n := 0
	for id := range s.byUser[userID] {
		if s.removeLocked(id) {
			n++
		}
	}
	s.mu.Unlock()
	s.notify(EvictLogoutAll, n)
	return n
}

// Clear deletes every session. Used for an emergency sign-out of all users.
func (s *MemoryStore) Clear() int {
	s.mu.Lock()
	n := len(s.sessions)
	s.sessions = make(map[string]*domain.Session)
	s.byUser = make(map[string]map[string]struct{})
	s.byRefresh = make(map[string]string)
	s.mu.Unlock()
	s.notify(EvictClear, n)
	return n
}

// Sweep deletes every session whose expiry is at or before now, plus refresh
// index entries pointing at missing sessions. Returns the number of sessions
// deleted.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	now := s.nowF()
	n := 0
	for id, sess := range s.sessions {
		if !sess.Live(now) && s.removeLocked(id) {
			n++
		}
	}
	for key, id := range s.byRefresh {
		if _, ok := s.sessions[id]; !ok {
			delete(s.byRefresh, key)
		}
	}
	s.mu.Unlock()
	s.notify(EvictSweep, n)
	return n
}

// Len returns the number of sessions held, including expired ones not yet
// evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CountForUser returns how many sessions userID currently holds.
func (s *MemoryStore) CountForUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser[userID])
}

// liveLocked returns the session for id and whether it is live at now. An
// expired session is removed and returned with live=false so the caller can
// report the eviction. Caller must hold s.mu.
func (s *MemoryStore) liveLocked(id string, now time.Time) (*domain.Session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !sess.Live(now) {
		s.removeLocked(id)
		return sess, false
	}
	return sess, true
}

// removeLocked deletes id from the table and both indices. Caller must hold s.mu.
func (s *MemoryStore) removeLocked(id string) bool {
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	if ids := s.byUser[sess.UserID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
	s.unindexRefreshLocked(sess)
	return true
}

func (s *MemoryStore) unindexRefreshLocked(sess *domain.Session) {
	if sess.RefreshTokenHash == "" {
		return
	}
	if s.byRefresh[sess.RefreshTokenHash] == sess.ID {
		delete(s.byRefresh, sess.RefreshTokenHash)
	}
}

func (s *MemoryStore) notify(reason string, n int) {
	if s.onEvict != nil && n > 0 {
		s.onEvict(reason, n)
	}
}
