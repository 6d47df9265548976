package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	appconfig "github.com/pearldental/clinic-platform/internal/config"
	"github.com/pearldental/clinic-platform/internal/gateway"
	"github.com/pearldental/clinic-platform/internal/notify"
	"github.com/pearldental/clinic-platform/internal/reminders"
	"github.com/pearldental/clinic-platform/pkg/logging"
)

// The reminder worker polls for due reminders and dispatches them over SMS.
// It deliberately does not touch the offline queue: the API process owns
// that end to end, so queued operations are never removed by a process that
// did not see the gateway acknowledge them.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build gateway", "error", err)
		os.Exit(1)
	}

	worker := reminders.NewWorker(gw, notify.NewStubSMSSender(logger.Named("notify")), logger.Named("reminders"),
		reminders.WithSMSFrom(cfg.SMSFromNumber),
		reminders.WithInterval(cfg.ReminderPollInterval))

	go worker.Run(ctx)

	logger.Info("reminder worker started", "interval", cfg.ReminderPollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("reminder worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}

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
