package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, carries a bad
	// signature, is expired, or is of the wrong kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSecretsNotDistinct is returned when the access and refresh secrets are
	// empty or identical.
	ErrSecretsNotDistinct = errors.New("access and refresh secrets must be set and distinct")
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Kind discriminates access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is implemented only by *AccessClaims and *RefreshClaims.
type Claims interface {
	jwt.Claims
	Kind() Kind
	Session() string
	UserID() string
	sealed()
}

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id,omitempty"`
	TokenKind Kind   `json:"kind"`
}

func (c *AccessClaims) Kind() Kind      { return c.TokenKind }
func (c *AccessClaims) Session() string { return c.SessionID }
func (c *AccessClaims) UserID() string  { return c.Subject }
func (*AccessClaims) sealed()           {}

// RefreshClaims holds JWT claims for the refresh token. It deliberately
// carries no email or role.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	TokenKind Kind   `json:"kind"`
}

func (c *RefreshClaims) Kind() Kind      { return c.TokenKind }
func (c *RefreshClaims) Session() string { return c.SessionID }
func (c *RefreshClaims) UserID() string  { return c.Subject }
func (*RefreshClaims) sealed()           {}

// Subject is the identity a token is issued for.
type Subject struct {
	UserID string
	Email  string
	Role   string
}

// TokenConfig configures a TokenCodec.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenCodec issues and verifies HS256 access and refresh JWTs. Each kind is
// signed with its own secret so one can never be accepted as the other.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	nowF          func() time.Time
}

// NewTokenCodec returns a TokenCodec for cfg. Zero TTLs select the defaults.
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, ErrSecretsNotDistinct
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenCodec{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		nowF:          time.Now,
	}, nil
}

// IssueAccess issues an access JWT for sub bound to sessionID.
// Returns the token string and its expiration time.
func (c *TokenCodec) IssueAccess(sub Subject, sessionID string) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.nowF().UTC()
	expiresAt := now.Add(c.accessTTL)
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sub.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     sub.Email,
		Role:      sub.Role,
		SessionID: sessionID,
		TokenKind: KindAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	return token, expiresAt, err
}

// IssueRefresh issues a refresh JWT for userID bound to sessionID.
func (c *TokenCodec) IssueRefresh(userID, sessionID string) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.nowF().UTC()
	expiresAt := now.Add(c.refreshTTL)
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		TokenKind: KindRefresh,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	return token, expiresAt, err
}

// Verify parses tokenString as the expected kind. It fails with
// ErrInvalidToken on a bad signature, expiry, issuer mismatch, or when the
// kind claim differs from expected.
func (c *TokenCodec) Verify(tokenString string, expected Kind) (Claims, error) {
	switch expected {
	case KindAccess:
		return c.VerifyAccess(tokenString)
	case KindRefresh:
		return c.VerifyRefresh(tokenString)
	default:
		return nil, ErrInvalidToken
	}
}

// VerifyAccess parses and validates an access token.
func (c *TokenCodec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenString, claims, c.accessSecret, KindAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token.
func (c *TokenCodec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenString, claims, c.refreshSecret, KindRefresh); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *TokenCodec) parse(tokenString string, claims Claims, secret []byte, expected Kind) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowF),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	// Runs even when the signature is valid.
	if claims.Kind() != expected {
		return ErrInvalidToken
	}
	if claims.UserID() == "" {
		return ErrInvalidToken
	}
	return nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
