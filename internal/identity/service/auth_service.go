package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	auditdomain "donorhub/backend/internal/audit/domain"
	"donorhub/backend/internal/security"
	sessiondomain "donorhub/backend/internal/session/domain"
	userdomain "donorhub/backend/internal/user/domain"
)

// Sentinel errors for auth service; transports map them to status codes.
var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountDeactivated     = errors.New("account deactivated")
	ErrInvalidToken           = security.ErrInvalidToken
	ErrSessionExpired         = errors.New("session expired")
	ErrUserInactive           = errors.New("user inactive")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidEmail           = errors.New("invalid email format")
)

// dummyPassword is hashed once and compared against when a login names an
// unknown email, so both failure paths cost one hash comparison.
const dummyPassword = "donorhub-timing-equalizer"

// ClientMeta describes the caller's connection.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	User         *userdomain.User
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// Principal is a caller resolved from an access token.
type Principal struct {
	User      *userdomain.User
	SessionID string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// SessionStore is the subset of the in-memory session store the auth service uses.
type SessionStore interface {
	Create(userID, accessToken, ip, userAgent, sessionID string) (*sessiondomain.Session, error)
	SetRefreshToken(sessionID, refreshToken string) bool
	SetAccessToken(sessionID, accessToken string) bool
	Touch(sessionID string) bool
	Remove(sessionID string) bool
	RemoveAllForUser(userID string) int
	Clear() int
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password []byte) (string, error)
	Verify(plaintext, hash string) bool
}

// PasswordGuard enforces password strength and history.
type PasswordGuard interface {
	HashWithHistory(ctx context.Context, candidate, userID string) (string, error)
	CheckAndHash(ctx context.Context, candidate, userID string) (string, error)
	Commit(ctx context.Context, userID, hash string) error
}

// AuditRecorder receives one entry per audited operation.
type AuditRecorder interface {
	Record(ctx context.Context, e auditdomain.Entry)
}

// AttemptCounter counts operations by outcome. Implemented by metrics.Metrics.
type AttemptCounter interface {
	AuthAttempt(action, outcome string)
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithLogger sets the logger for operator-only failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.nowF = now
		}
	}
}

// WithAttemptCounter reports every audited operation to c.
func WithAttemptCounter(c AttemptCounter) Option {
	return func(s *AuthService) { s.attempts = c }
}

// AuthService implements login, logout, logout-all, refresh and resolve over
// the in-memory session store, plus registration and password change.
type AuthService struct {
	users    UserRepo
	sessions SessionStore
	hasher   Hasher
	tokens   *security.TokenCodec
	guard    PasswordGuard
	audit    AuditRecorder
	attempts AttemptCounter
	logger   *slog.Logger
	nowF     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	users UserRepo,
	sessions SessionStore,
	hasher Hasher,
	tokens *security.TokenCodec,
	guard PasswordGuard,
	audit AuditRecorder,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		guard:    guard,
		audit:    audit,
		logger:   slog.Default(),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates email and password and opens a new session. An unknown
// email and a wrong password both fail with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string, client ClientMeta) (res *LoginResult, err error) {
	var userID, sessionID string
	defer func() { s.record(ctx, auditdomain.ActionLogin, userID, sessionID, client, err) }()

	email = userdomain.NormalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		s.hasher.Verify(password, s.timingHash())
		return nil, ErrInvalidCredentials
	}
	userID = user.ID
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, ErrAccountDeactivated
	}

	sid := uuid.New().String()
	accessToken, _, err := s.tokens.IssueAccess(subjectOf(user), sid)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.tokens.IssueRefresh(user.ID, sid)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Create(user.ID, accessToken, client.IP, client.UserAgent, sid); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.sessions.SetRefreshToken(sid, refreshToken)
	sessionID = sid

	now := s.nowF()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("update last login failed", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}

	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sid,
	}, nil
}

// Logout ends the session named by accessToken. It never fails: an invalid,
// expired or already revoked token is a no-op.
func (s *AuthService) Logout(ctx context.Context, accessToken string, client ClientMeta) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		s.record(ctx, auditdomain.ActionLogout, "", "", client, ErrInvalidToken)
		return
	}
	if claims.SessionID != "" {
		s.sessions.Remove(claims.SessionID)
	}
	s.record(ctx, auditdomain.ActionLogout, claims.Subject, claims.SessionID, client, nil)
}

// LogoutAll removes every session owned by userID and returns how many were removed.
func (s *AuthService) LogoutAll(ctx context.Context, userID string, client ClientMeta) int {
	n := s.sessions.RemoveAllForUser(userID)
	s.record(ctx, auditdomain.ActionLogoutAll, userID, "", client, nil)
	return n
}

// Refresh mints a new access token from a refresh token. The session's sliding
// expiry is not extended; only Resolve does that.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientMeta) (accessToken string, err error) {
	var userID, sessionID string
	defer func() { s.record(ctx, auditdomain.ActionRefresh, userID, sessionID, client, err) }()

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	userID, sessionID = claims.Subject, claims.SessionID
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive() {
		return "", ErrUserInactive
	}
	accessToken, _, err = s.tokens.IssueAccess(subjectOf(user), claims.SessionID)
	if err != nil {
		return "", err
	}
	if claims.SessionID != "" {
		s.sessions.SetAccessToken(claims.SessionID, accessToken)
	}
	return accessToken, nil
}

// Resolve authenticates a caller from an access token. A token bound to a
// session is only accepted while that session is live, and each success
// slides the session's expiry forward. Failures are audited.
func (s *AuthService) Resolve(ctx context.Context, accessToken string, client ClientMeta) (p *Principal, err error) {
	var userID, sessionID string
	defer func() {
		if err != nil {
			s.record(ctx, auditdomain.ActionResolve, userID, sessionID, client, err)
		}
	}()

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, sessionID = claims.Subject, claims.SessionID
	if claims.SessionID != "" && !s.sessions.Touch(claims.SessionID) {
		return nil, ErrSessionExpired
	}
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive() {
		return nil, ErrUserInactive
	}
	return &Principal{User: user, SessionID: claims.SessionID}, nil
}

// Register creates an active donor account. The initial hash is written to
// password history once the user exists.
func (s *AuthService) Register(ctx context.Context, email, password, name string, client ClientMeta) (u *userdomain.User, err error) {
	var userID string
	defer func() { s.record(ctx, auditdomain.ActionRegister, userID, "", client, err) }()

	email = userdomain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hash, err := s.guard.HashWithHistory(ctx, password, "")
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         userdomain.RoleDonor,
		Status:       userdomain.UserStatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	userID = user.ID
	if err := s.guard.Commit(ctx, user.ID, hash); err != nil {
		s.logger.Error("initial password history commit failed", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// ChangePassword replaces the user's password after verifying current against
// the stored hash. The new password must pass strength and history checks.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string, client ClientMeta) (err error) {
	defer func() { s.record(ctx, auditdomain.ActionPasswordChange, userID, "", client, err) }()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive() {
		return ErrUserInactive
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := s.guard.CheckAndHash(ctx, next, userID)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	// History only records hashes the user actually holds.
	if err := s.guard.Commit(ctx, userID, hash); err != nil {
		s.logger.Error("password history commit failed", "user_id", userID, "error", err)
	}
	return nil
}

// ClearAllSessions signs out every user. Authorization is the caller's concern.
func (s *AuthService) ClearAllSessions(ctx context.Context, actorID string, client ClientMeta) int {
	n := s.sessions.Clear()
	s.record(ctx, auditdomain.ActionSessionsClear, actorID, "", client, nil)
	s.logger.Warn("all sessions cleared", "actor_id", actorID, "removed", n)
	return n
}

func (s *AuthService) record(ctx context.Context, action auditdomain.Action, userID, sessionID string, client ClientMeta, err error) {
	outcome := auditdomain.OutcomeSuccess
	msg := ""
	if err != nil {
		outcome = auditdomain.OutcomeFailure
		msg = err.Error()
	}
	if s.attempts != nil {
		s.attempts.AuthAttempt(string(action), string(outcome))
	}
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, auditdomain.Entry{
		UserID:    userID,
		SessionID: sessionID,
		Action:    action,
		Outcome:   outcome,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Error:     msg,
		CreatedAt: s.nowF(),
	})
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash([]byte(dummyPassword))
		if err != nil {
			s.logger.Error("timing hash unavailable", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func subjectOf(u *userdomain.User) security.Subject {
	return security.Subject{UserID: u.ID, Email: u.Email, Role: string(u.Role)}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" || !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}
