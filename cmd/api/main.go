package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pearldental/clinic-platform/cmd/mainconfig"
	"github.com/pearldental/clinic-platform/internal/api/router"
	"github.com/pearldental/clinic-platform/internal/appointments"
	"github.com/pearldental/clinic-platform/internal/booking"
	appconfig "github.com/pearldental/clinic-platform/internal/config"
	"github.com/pearldental/clinic-platform/internal/connectivity"
	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/internal/http/handlers"
	"github.com/pearldental/clinic-platform/internal/notify"
	"github.com/pearldental/clinic-platform/internal/observability/metrics"
	"github.com/pearldental/clinic-platform/internal/offline"
	"github.com/pearldental/clinic-platform/internal/reminders"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"gateway", cfg.GatewayBackend,
	)

	ctx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	base, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build gateway", "error", err)
		os.Exit(1)
	}

	monitor := connectivity.NewMonitor(logger.Named("connectivity"))
	gw := gateway.NewMonitored(base, monitor)
	monitor.Probe(ctx, func(ctx context.Context) error {
		_, err := base.Query(ctx, appointments.Table, gateway.Filter{"id": "startup-probe"})
		return err
	})

	storage := buildStorage(cfg, logger)
	syncMetrics := metrics.NewSyncMetrics(nil)
	queue := offline.NewQueue(storage, gw, logger.Named("offline")).
		WithKey(cfg.QueueStorageKey).
		WithMaxLength(cfg.QueueMaxLength).
		WithRetryBackoff(cfg.QueueRetryBase, cfg.QueueRetryCap).
		WithMetrics(syncMetrics)
	if err := queue.Load(ctx); err != nil {
		logger.Error("failed to restore offline queue", "error", err)
		os.Exit(1)
	}
	monitor.OnReconnect(func() {
		if err := queue.Drain(context.Background()); err != nil {
			logger.Error("reconnect drain failed", "error", err)
		}
	})
	// This process is the queue's sole owner: it enqueues, drains on
	// reconnect, and retries on a timer. A second process loading the same
	// storage key would clobber operations enqueued after its load.
	drainer := offline.NewDrainer(queue, logger.Named("offline")).
		WithInterval(cfg.QueueDrainInterval)
	go drainer.Run(ctx)

	checker := appointments.NewChecker(gw, logger.Named("appointments")).
		WithReusableCancelledSlots(cfg.ReusableCancelledSlots)
	reminderScheduler := reminders.NewScheduler(gw, logger.Named("reminders"),
		reminders.WithOffsets(cfg.ReminderOffsets))
	notifier := notify.NewService(
		buildEmailSender(ctx, cfg, logger),
		notify.NewStubSMSSender(logger.Named("notify")),
		notify.Config{
			ClinicName:  cfg.ClinicName,
			SMSFrom:     cfg.SMSFromNumber,
			StaffEmails: cfg.StaffEmails,
		},
		logger.Named("notify"),
	)

	orch := booking.NewOrchestrator(gw, checker, queue, logger.Named("booking"),
		booking.WithConnectivity(monitor),
		booking.WithReminders(reminderScheduler),
		booking.WithMetrics(metrics.NewBookingMetrics(nil)),
	)

	syncHandler := handlers.NewSyncHandler(queue, monitor, logger.Named("http"))
	// Surface backend change activity on /sync/status. The supabase gateway
	// has no realtime channel, so the subscription is a no-op there.
	gw.Subscribe(appointments.Table, syncHandler.ObserveChange)
	gw.Subscribe(reminders.Table, syncHandler.ObserveChange)

	r := router.New(&router.Config{
		Logger: logger,
		Appointments: handlers.NewAppointmentsHandler(handlers.AppointmentsConfig{
			Orchestrator: orch,
			Checker:      checker,
			Gateway:      gw,
			Reminders:    reminderScheduler,
			Notifier:     notifier,
			Logger:       logger.Named("http"),
		}),
		Sync:               syncHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WriteRateLimit:     5,
		WriteBurst:         10,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildGateway selects the remote data gateway implementation.
func buildGateway(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (gateway.Gateway, error) {
	switch cfg.GatewayBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return gateway.NewPostgres(pool), nil
	case "memory":
		logger.Warn("using in-memory gateway, data will not survive restarts")
		return gateway.NewMemory(), nil
	default:
		return gateway.DialSupabase(cfg.SupabaseURL, cfg.SupabaseServiceKey)
	}
}

// buildStorage picks where the offline queue persists. The memory backend
// is for tests and demos; production uses Redis so queued writes survive
// restarts.
func buildStorage(cfg *appconfig.Config, logger *logging.Logger) offline.Storage {
	if cfg.GatewayBackend == "memory" {
		return offline.NewMemoryStorage()
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	logger.Info("offline queue storage", "redis_addr", cfg.RedisAddr)
	return offline.NewRedisStorage(redis.NewClient(opts))
}

// buildEmailSender picks the configured email provider, falling back to a
// logging stub.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	case "ses":
		client, err := mainconfig.NewSESClient(ctx, cfg)
		if err != nil {
			logger.Error("failed to build SES client, using stub email", "error", err)
			break
		}
		if sender := notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}
