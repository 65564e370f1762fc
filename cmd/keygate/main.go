// Command keygate serves registration, login, token refresh and password
// recovery over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plextask/keygate"
	"github.com/plextask/keygate/internal/config"
	"github.com/plextask/keygate/metrics/export/prometheus"
	"github.com/plextask/keygate/transport/httpapi"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exit", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rdb, closeRedis, err := openRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	accounts, closeStore, err := openAccounts(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, err := newNotifier(cfg.Mail, logger)
	if err != nil {
		return err
	}

	engine, err := keygate.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithRedisPrefix(cfg.Redis.Prefix).
		WithAccountStore(accounts).
		WithNotifier(notifier).
		WithAuditSink(keygate.NewZapSink(logger.Named("audit"))).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.New(engine, httpapi.Options{
		Logger:               logger.Named("http"),
		AllowedOrigins:       cfg.Server.AllowedOrigins,
		MaskCredentialErrors: cfg.Server.MaskCredentialErrors,
		InsecureCookies:      cfg.Server.InsecureCookies,
		Metrics:              prometheus.NewExporter(engine).Handler(),
		Health: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
			_ = srv.Close()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
