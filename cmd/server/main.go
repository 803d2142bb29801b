// server runs the donorhub auth HTTP API and the gRPC health/session services.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"donorhub/backend/internal/audit"
	auditrepo "donorhub/backend/internal/audit/repository"
	"donorhub/backend/internal/audit/stream"
	"donorhub/backend/internal/config"
	"donorhub/backend/internal/db"
	healthhandler "donorhub/backend/internal/health/handler"
	"donorhub/backend/internal/httpapi"
	"donorhub/backend/internal/identity/service"
	"donorhub/backend/internal/logging"
	"donorhub/backend/internal/metrics"
	"donorhub/backend/internal/password"
	passwordrepo "donorhub/backend/internal/password/repository"
	"donorhub/backend/internal/policy/engine"
	"donorhub/backend/internal/security"
	"donorhub/backend/internal/server"
	"donorhub/backend/internal/session"
	telemetryotel "donorhub/backend/internal/telemetry/otel"
	userrepo "donorhub/backend/internal/user/repository"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(flushCtx); err != nil {
			logger.Error("otel shutdown failed", "error", err)
		}
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	history := passwordrepo.NewPostgresRepository(conn)
	audits := auditrepo.NewPostgresRepository(conn)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sinks := audit.MultiSink{
		audit.NewRepositorySink(audits),
		telemetryotel.NewAuditSink(providers.LoggerProvider),
	}
	if cfg.AuditRedisAddr != "" {
		redisSink, err := stream.Dial(ctx, cfg.AuditRedisAddr, cfg.AuditRedisStream)
		if err != nil {
			return fmt.Errorf("audit redis: %w", err)
		}
		defer redisSink.Close()
		sinks = append(sinks, redisSink)
	}
	if brokers := cfg.KafkaBrokers(); len(brokers) > 0 {
		kafkaSink, err := stream.NewKafkaSink(brokers, cfg.AuditKafkaTopic)
		if err != nil {
			return fmt.Errorf("audit kafka: %w", err)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	auditLogger := audit.NewLogger(sinks,
		audit.WithBufferSize(cfg.AuditBufferSize),
		audit.WithLogger(logger),
		audit.WithDropHook(m.AuditDropped),
	)
	defer auditLogger.Close()

	store := session.NewMemoryStore(
		session.WithLogger(logger),
		session.WithEvictionHook(m.SessionsEvicted),
	)
	m.TrackActiveSessions(store.Len)
	store.Start()
	defer store.Stop()

	hasher := security.NewHasher(cfg.BcryptCost)
	tokens, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	})
	if err != nil {
		return err
	}
	guard := password.NewGuard(hasher, history,
		password.WithDepth(cfg.PasswordHistoryCheck, cfg.PasswordHistoryRetain),
		password.WithLogger(logger),
	)
	authSvc := service.NewAuthService(users, store, hasher, tokens, guard, auditLogger,
		service.WithLogger(logger),
		service.WithAttemptCounter(m),
	)

	authz, err := engine.NewRoleEvaluator(ctx)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Auth:               authSvc,
			Audit:              audits,
			Authorizer:         authz,
			Metrics:            m,
			Gatherer:           reg,
			Logger:             logger,
			CORSOrigins:        cfg.CORSOrigins(),
			LoginRatePerSecond: cfg.LoginRatePerSecond,
			LoginRateBurst:     cfg.LoginRateBurst,
			TrustedProxies:     cfg.TrustedProxies(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := healthhandler.NewServer(conn, authz, logger)
	grpcSrv := server.NewServer(server.Deps{Auth: authSvc, Health: health, Logger: logger})
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc server listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		health.Run(gctx, healthInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped", "audit_dropped", auditLogger.Dropped())
	return nil
}
