// Package httpapi exposes the authentication core over HTTP with gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditrepo "donorhub/backend/internal/audit/repository"
	"donorhub/backend/internal/identity/service"
	"donorhub/backend/internal/metrics"
	"donorhub/backend/internal/policy/engine"
	userdomain "donorhub/backend/internal/user/domain"
)

// Authenticator is the auth service surface used by the HTTP handlers.
type Authenticator interface {
	Resolver
	Login(ctx context.Context, email, password string, client service.ClientMeta) (*service.LoginResult, error)
	Logout(ctx context.Context, accessToken string, client service.ClientMeta)
	LogoutAll(ctx context.Context, userID string, client service.ClientMeta) int
	Refresh(ctx context.Context, refreshToken string, client service.ClientMeta) (string, error)
	Register(ctx context.Context, email, password, name string, client service.ClientMeta) (*userdomain.User, error)
	ChangePassword(ctx context.Context, userID, current, next string, client service.ClientMeta) error
	ClearAllSessions(ctx context.Context, actorID string, client service.ClientMeta) int
}

// Options configures the router.
type Options struct {
	Auth       Authenticator
	Audit      auditrepo.Repository
	Authorizer engine.Authorizer
	Metrics    *metrics.Metrics
	// Gatherer backs /metrics; defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	CORSOrigins        []string
	LoginRatePerSecond float64
	LoginRateBurst     int

	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are
	// honoured. Empty trusts none and uses the peer address.
	TrustedProxies []string
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(observe(opts.Metrics))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	h := &handlers{auth: opts.Auth, audit: opts.Audit}
	caller := RequireCaller(opts.Auth)

	auth := r.Group("/api/auth")
	auth.POST("/register", h.register)
	auth.POST("/login", RateLimit(opts.LoginRatePerSecond, opts.LoginRateBurst), h.login)
	auth.POST("/refresh", h.refresh)
	auth.POST("/logout", h.logout)
	auth.POST("/logout-all", caller, h.logoutAll)
	auth.GET("/me", caller, h.me)
	auth.POST("/password", caller, h.changePassword)

	admin := r.Group("/api/admin", caller)
	admin.DELETE("/sessions", RequirePermission(opts.Authorizer, engine.ActionSessionsClear), h.clearSessions)
	admin.GET("/audit", RequirePermission(opts.Authorizer, engine.ActionAuditRead), h.listAudit)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
