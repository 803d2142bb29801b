package security

import "time"

// Test secrets for unit tests only. Do not use in production.
const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-fedcba9876543210"
	testIssuer        = "test-issuer"
)

// NewTestTokenCodec returns a TokenCodec using fixed test secrets and the
// default TTLs. For unit tests only. Callers must not use in production.
func NewTestTokenCodec() *TokenCodec {
	c, err := NewTokenCodec(TokenConfig{
		AccessSecret:  []byte(testAccessSecret),
		RefreshSecret: []byte(testRefreshSecret),
		Issuer:        testIssuer,
		AccessTTL:     DefaultAccessTTL,
		RefreshTTL:    DefaultRefreshTTL,
	})
	if err != nil {
		panic(err)
	}
	return c
}

// NewTestTokenCodecWithTTL is NewTestTokenCodec with explicit lifetimes.
func NewTestTokenCodecWithTTL(accessTTL, refreshTTL time.Duration) *TokenCodec {
	c := NewTestTokenCodec()
	c.accessTTL = accessTTL
	c.refreshTTL = refreshTTL
	return c
}
