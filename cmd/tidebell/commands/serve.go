package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidebell/tidebell/am"
	"github.com/tidebell/tidebell/bridge"
	"github.com/tidebell/tidebell/crawl"
	"github.com/tidebell/tidebell/db"
	"github.com/tidebell/tidebell/errors"
	"github.com/tidebell/tidebell/logger"
	"github.com/tidebell/tidebell/schedule"
	"github.com/tidebell/tidebell/server"
	"github.com/tidebell/tidebell/session"
)

// ServeCmd starts the tidebell server
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tidebell server",
	Long: `Start the scheduler, delivery bridge and HTTP API. Persisted
schedules are recovered and re-armed before the server accepts requests.`,
	RunE: runServe,
}

var serveDBPath string

func init() {
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if serveDBPath != "" {
		cfg.Database.Path = serveDBPath
	}

	log := logger.Logger
	if cfg.Instance.ID != "" {
		log = log.With("instance_id", cfg.Instance.ID)
	}

	database, err := db.OpenWithMigrations(cfg.Database.Path, log)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Delivery bridge
	var medium bridge.Medium
	if cfg.Redis.Enabled {
		medium, err = bridge.NewRedisMedium(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			return errors.Wrap(err, "failed to connect delivery bridge")
		}
	} else {
		log.Infow("Redis disabled, using in-process delivery medium")
		medium = bridge.NewMemoryMedium(log)
	}
	defer medium.Close()

	publisher := bridge.NewPublisher(medium, log)
	sessions := session.NewRegistry(log)

	subscriber := bridge.NewSubscriber(medium, []bridge.Handler{
		&bridge.UserHandler{Sessions: sessions},
		&bridge.BroadcastHandler{Sessions: sessions},
	}, log)
	if err := subscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start delivery subscriber")
	}
	defer subscriber.Stop()

	// Scheduler
	store := schedule.NewStore(database)
	registry := schedule.NewRegistry()

	crawler := crawl.NewDemo(publisher, log)
	registry.Register(crawler)

	runnerCfg := schedule.RunnerConfig{
		Workers:   cfg.Scheduler.Workers,
		QueueSize: cfg.Scheduler.QueueSize,
	}
	runner := schedule.NewRunner(ctx, store, registry, runnerCfg, log)
	scheduler := schedule.NewScheduler(ctx, runner, log)

	// One-shot jobs drop their timer once the unit reports completion
	runner.OnComplete = scheduler.Cancel

	runner.Start()
	defer runner.Stop()
	defer scheduler.Stop()

	// Re-arm persisted schedules before accepting requests
	recovery := schedule.NewRecovery(store, scheduler, registry, log)
	recovered, err := recovery.Recover(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to recover persisted schedules")
	}
	log.Infow("Recovery complete", "jobs_recovered", recovered)

	service := schedule.NewService(store, scheduler, registry, log)
	srv := server.New(cfg, service, sessions, crawler, log)

	// Serve until interrupted
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Infow("Shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}
