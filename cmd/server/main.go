package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/missedmail/internal/api"
	"github.com/ricirt/missedmail/internal/api/handler"
	"github.com/ricirt/missedmail/internal/config"
	"github.com/ricirt/missedmail/internal/db"
	"github.com/ricirt/missedmail/internal/mailer"
	"github.com/ricirt/missedmail/internal/metrics"
	"github.com/ricirt/missedmail/internal/notifier"
	"github.com/ricirt/missedmail/internal/ratelimiter"
	"github.com/ricirt/missedmail/internal/replyaddress"
	"github.com/ricirt/missedmail/internal/repository"
	"github.com/ricirt/missedmail/internal/service"
	"github.com/ricirt/missedmail/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- reply tokens ----
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close() //nolint:errcheck
	tokenStore := replyaddress.NewRedisStore(rdb)
	if err := tokenStore.Ping(ctx); err != nil {
		// Digests still go out without reply-by-email; see notifier fallback.
		logger.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	issuer := replyaddress.NewIssuer(tokenStore, replyaddress.UUIDGenerator{}, cfg.ReplyTokenTTL, cfg.EmailGatewayPattern)

	// ---- mail transport ----
	base, err := newTransport(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to build mail transport", zap.Error(err))
	}
	transport := mailer.NewRateLimited(base, ratelimiter.New(cfg.MailRatePerDomain))
	if cfg.EmailGatewayPattern == "" {
		logger.Warn("EMAIL_GATEWAY_PATTERN not set; digests will ask users not to reply")
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := repository.NewPgMessageStore(pool)
	pending := repository.NewPgPendingQueue(pool)

	n := notifier.New(notifier.Config{
		NoReplyAddress:      cfg.NoReplyAddress,
		EmailGatewayPattern: cfg.EmailGatewayPattern,
		SendAsUser:          cfg.SendAsUser,
		SiteName:            cfg.SiteName,
		ServerURL:           cfg.ServerURL,
		ContextMessages:     cfg.ContextMessages,
	}, store, issuer, transport, logger, m.NotifierHooks(transport.Name()))

	svc := service.NewMissedMessageService(pending, n, issuer, logger)

	// ---- digest worker ----
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	digestW := worker.NewDigestWorker(pending, n, worker.DigestConfig{
		Interval:    cfg.DigestInterval,
		BatchWindow: cfg.DigestBatchWindow,
		BatchLimit:  cfg.DigestBatchLimit,
	}, m.OnClaimed, logger)
	workerDone := make(chan struct{})
	go func() {
		digestW.Run(workerCtx)
		close(workerDone)
	}()

	// ---- HTTP server ----
	router := api.NewRouter(svc, map[string]handler.Check{
		"postgres": pool.Ping,
		"redis":    tokenStore.Ping,
	}, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("transport", transport.Name()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new events.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the digest worker; unclaimed events stay queued for the next start.
	cancelWorker()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("digest worker did not stop before shutdown timeout")
	}

	logger.Info("server stopped cleanly")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newTransport(ctx context.Context, cfg *config.Config) (mailer.Transport, error) {
	switch cfg.MailTransport {
	case config.TransportSMTP:
		return mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.MailTimeout,
		}), nil
	case config.TransportSES:
		return mailer.NewSESTransport(ctx, cfg.SESRegion)
	case config.TransportWebhook:
		return mailer.NewWebhookTransport(cfg.MailWebhookURL, cfg.MailTimeout), nil
	case config.TransportOutbox:
		return mailer.NewOutbox(), nil
	}
	return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
}
