package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"donorhub/backend/internal/identity/service"
	"donorhub/backend/internal/metrics"
	"donorhub/backend/internal/policy/engine"
)

const principalKey = "donorhub.principal"

// Resolver authenticates a bearer access token.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string, client service.ClientMeta) (*service.Principal, error)
}

// RequireCaller resolves the bearer token and stores the caller in the gin context.
func RequireCaller(r Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			abortWithError(c, service.ErrInvalidToken)
			return
		}
		p, err := r.Resolve(c.Request.Context(), token, clientMeta(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// RequirePermission lets the request through only if the caller's role may perform action.
// Must run after RequireCaller.
func RequirePermission(authz engine.Authorizer, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Caller(c)
		if p == nil {
			abortWithError(c, service.ErrInvalidToken)
			return
		}
		ok, err := authz.Allowed(c.Request.Context(), string(p.User.Role), action)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if !ok {
			abortWithCode(c, http.StatusForbidden, codeForbidden, "not allowed")
			return
		}
		c.Next()
	}
}

// Caller returns the principal set by RequireCaller, or nil.
func Caller(c *gin.Context) *service.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*service.Principal)
	return p
}

// RateLimit is a token bucket per client IP. Idle buckets are pruned after ttl.
// A non-positive rate or burst disables limiting.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 || burst <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	type bucket struct {
		lim  *rate.Limiter
		seen time.Time
	}
	const ttl = 5 * time.Minute
	var (
		mu        sync.Mutex
		buckets   = make(map[string]*bucket)
		lastPrune = time.Now()
	)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		now := time.Now()
		mu.Lock()
		if now.Sub(lastPrune) > time.Minute {
			for k, b := range buckets {
				if now.Sub(b.seen) > ttl {
					delete(buckets, k)
				}
			}
			lastPrune = now
		}
		b, ok := buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
			buckets[ip] = b
		}
		b.seen = now
		allowed := b.lim.AllowN(now, 1)
		mu.Unlock()
		if !allowed {
			abortWithCode(c, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			logger.Error("http request failed", append(attrs, "error", c.Errors.Last().Err)...)
			return
		}
		logger.Debug("http request", attrs...)
	}
}

func observe(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func clientMeta(c *gin.Context) service.ClientMeta {
	return service.ClientMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
