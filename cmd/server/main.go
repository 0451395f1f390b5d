package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ricirt/appointment-reminders/internal/api"
	"github.com/ricirt/appointment-reminders/internal/api/handler"
	"github.com/ricirt/appointment-reminders/internal/config"
	"github.com/ricirt/appointment-reminders/internal/db"
	"github.com/ricirt/appointment-reminders/internal/domain"
	"github.com/ricirt/appointment-reminders/internal/idempotency"
	"github.com/ricirt/appointment-reminders/internal/logging"
	"github.com/ricirt/appointment-reminders/internal/metrics"
	"github.com/ricirt/appointment-reminders/internal/notification"
	"github.com/ricirt/appointment-reminders/internal/provider"
	"github.com/ricirt/appointment-reminders/internal/queue"
	"github.com/ricirt/appointment-reminders/internal/ratelimiter"
	"github.com/ricirt/appointment-reminders/internal/repository"
	"github.com/ricirt/appointment-reminders/internal/service"
	"github.com/ricirt/appointment-reminders/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, "migrations"); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- metrics + redis ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rdb, err := db.ConnectRedis(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()
	rdb.AddHook(m.RedisHook())

	// ---- core dependencies ----
	repo := repository.NewPgLookupRepository(pool)
	deadLetters := queue.NewDeadLetters(rdb, cfg.DeadLetterKey)
	guard := idempotency.NewRedisGuard(rdb, cfg.IdempotencyKeyPrefix, cfg.IdempotencyFailOpen, logger.Named("idempotency"))

	q := queue.NewRedisQueue[domain.NotificationJob](rdb, queue.Options{
		QueueKey:           cfg.QueueKey,
		ScheduledKey:       cfg.ScheduledKey,
		PollInterval:       cfg.PollInterval,
		ScheduledBatchSize: cfg.ScheduledBatchSize,
		AtomicPromotion:    cfg.AtomicPromotion,
		FIFO:               cfg.QueueFIFO,
		Hooks:              m.QueueHooks(),
	}, logger.Named("queue"))

	mailer, err := provider.NewResendMailer(cfg.ResendBaseURL, cfg.ResendAPIKey, cfg.EmailFrom, cfg.ProviderTimeout)
	if err != nil {
		logger.Fatal("failed to load email templates", zap.Error(err))
	}
	sms := provider.NewTwilioClient(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.ProviderTimeout)
	if !cfg.SMSConfigured() {
		logger.Warn("twilio credentials missing, sms channel is unsupported")
	}

	// ---- delivery adapters, each behind a rate limiter, breaker and retries ----
	limiter := ratelimiter.New(cfg.RateLimit)
	onSent, onRetry, onFailed := m.DeliveryHooks()
	hooks := worker.DeliveryHooks{OnSent: onSent, OnRetry: onRetry, OnFailed: onFailed}
	breaker := worker.BreakerSettings{
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		MinRequests: cfg.BreakerMinRequests,
		FailureRate: cfg.BreakerFailureRate,
	}
	deliveryLogger := logger.Named("delivery")
	guarded := func(ch domain.Channel, next notification.ChannelAdapter) notification.ChannelAdapter {
		return worker.NewDeliveryWorker(ch, next, limiter, cfg.DeliveryBackoff, breaker, deadLetters, deliveryLogger, hooks)
	}
	adapters := map[domain.Channel]notification.ChannelAdapter{
		domain.ChannelEmail: guarded(domain.ChannelEmail, notification.NewEmailAdapter(mailer)),
		domain.ChannelSMS:   notification.SMSChannel(sms, cfg.DefaultCountryCode, deliveryLogger),
	}
	if cfg.SMSConfigured() {
		adapters[domain.ChannelSMS] = guarded(domain.ChannelSMS, adapters[domain.ChannelSMS])
	}

	sender := notification.NewSender(repo, adapters, logger.Named("sender"))
	module := notification.NewModule(q, guard, sender, cfg.ReminderLead, logger,
		notification.WithDuplicateHook(m.OnDuplicate))
	svc := service.NewReminderService(repo, module.Publisher, deadLetters, logger.Named("service"))

	// ---- background workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	module.Start()

	sampler := worker.NewDepthSampler(q, deadLetters, cfg.StatsInterval, m.SetDepths, logger.Named("sampler"))
	bg := worker.NewPool(logger, sampler)
	bg.Start(workerCtx)

	// ---- HTTP server ----
	checks := []handler.HealthCheck{
		{Name: "redis", Check: q.Ping},
		{Name: "postgres", Check: pool.Ping},
	}
	if cfg.ResendAPIKey != "" {
		checks = append(checks, handler.HealthCheck{Name: "email", Check: mailer.Ping})
	}

	router := api.NewRouter(svc, q, deadLetters, checks, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the polling loop; the job in flight finishes first.
	module.Close()

	// 3. Stop the sampler and wait for it.
	cancelWorkers()
	bg.Wait()

	logger.Info("server stopped cleanly")
}
