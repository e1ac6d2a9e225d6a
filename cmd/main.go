package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/delivery"
	"ecs_event_collector/internal/ecs"
	"ecs_event_collector/internal/handlers"
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/repository"
	"ecs_event_collector/internal/repository/db"
	"ecs_event_collector/internal/server"
	"ecs_event_collector/internal/service"

	"github.com/spf13/cobra"
)

const (
	configEnv       = "ECS_COLLECTOR_CONFIG"
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 30 * time.Second
)

// newLogger returns the process-wide logger; replaced in tests.
var newLogger = logger.Get

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ecs-event-collector",
		Short:         "Collect daily ECS audit events and deliver them by mail or to S3",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the YAML configuration file (env "+configEnv+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the collection schedule until interrupted (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runScheduler(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "test",
			Short: "Run one collection immediately and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOnce(cmd.Context(), configPath)
			},
		},
	)
	return root
}

func defaultConfigPath() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return config.DefaultPath
}

// app holds everything wired from one configuration.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	db       *sql.DB
	services *service.Service
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Errorw("failed to close sqlite", "err", err)
	}
	_ = a.log.Sync()
}

// bootstrap loads the configuration and wires dependencies. Any error here
// is fatal: the scheduler never starts on a bad configuration.
func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		newLogger(logger.InfoLevel).Errorw("invalid configuration", "path", configPath, "err", err)
		return nil, err
	}
	log := newLogger(cfg.LogLevel)
	for _, w := range cfg.Warnings {
		log.Warnw("config_warning", "msg", w)
	}

	sqlDB, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Errorw("failed to init sqlite", "path", cfg.DBPath, "err", err)
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: sqlDB}

	client, err := ecs.NewClient(ecs.WithTLSConfig(cfg.CAFile, cfg.InsecureSkipVerify), ecs.WithLogger(log))
	if err != nil {
		log.Errorw("failed to build ecs client", "cafile", cfg.CAFile, "err", err)
		a.close()
		return nil, fmt.Errorf("ecs client: %w", err)
	}
	fetcher, err := ecs.NewFetcher(cfg, client, log)
	if err != nil {
		log.Errorw("failed to build ecs fetcher", "err", err)
		a.close()
		return nil, err
	}

	deliverers, err := newDeliverers(ctx, cfg, log)
	if err != nil {
		log.Errorw("failed to set up delivery", "err", err)
		a.close()
		return nil, err
	}

	repos := repository.NewRepository(sqlDB)
	a.services = service.NewService(cfg, repos, fetcher, log, deliverers...)
	return a, nil
}

func newDeliverers(ctx context.Context, cfg config.Config, log *logger.Logger) ([]service.Deliverer, error) {
	var out []service.Deliverer
	if cfg.Mail != nil {
		out = append(out, delivery.NewMailer(*cfg.Mail, log))
	}
	if cfg.S3 != nil {
		up, err := delivery.NewUploader(*cfg.S3, log)
		if err != nil {
			return nil, err
		}
		checkCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		defer cancel()
		if err := up.Check(checkCtx); err != nil {
			// The bucket may become reachable before the first run.
			log.Warnw("s3_check_failed", "err", err)
		}
		out = append(out, up)
	}
	return out, nil
}

// runOnce executes a single job and reports its error.
func runOnce(ctx context.Context, configPath string) error {
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.services.Job.Run(ctx, time.Now()); err != nil {
		a.log.Errorw("test_run_failed", "err", err)
		return err
	}
	a.log.Infow("test_run_succeeded")
	return nil
}

func runScheduler(ctx context.Context, configPath string) error {
	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.services.Scheduler.Run(ctx)
	}()

	var srv *server.Server
	if a.cfg.StatusPort != "" {
		srv = &server.Server{}
		runHTTPServer(srv, a.cfg.StatusPort, handlers.NewHandler(a.services, a.log), a.log)
	}

	waitForShutdown(ctx, cancel, srv, a.log)
	<-done
	return nil
}

// runHTTPServer runs the status server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("status server listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Errorw("status server stopped", "err", err)
		}
	}()
}

// waitForShutdown blocks until a termination signal arrives or ctx ends, then
// stops the scheduler and the status server.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Infow("shutting down...", "signal", sig.String())
	case <-ctx.Done():
	}

	// stop the scheduler; an in-flight job sees the cancellation through its requests
	cancel()

	if srv == nil {
		return
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("status server forced to shutdown", "err", err)
	}
}
