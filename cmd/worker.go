package cmd

import (
	"context"
	"go/types"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellar/go/support/config"
	"github.com/stellar/go/support/log"

	cmdUtils "github.com/innosystem/dispatch-platform-backend/cmd/utils"
	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/crashtracker"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/monitor"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
	"github.com/innosystem/dispatch-platform-backend/internal/worker"
)

type WorkerCommand struct{}

type workerCommandConfigOptions struct {
	RunnerID            string
	MaxConcurrentJobs   int
	PollIntervalMS      int
	QueueTimeoutSeconds int
	RedisURL            string
}

func (c *WorkerCommand) Command(monitorService monitor.MonitorServiceInterface) *cobra.Command {
	opts := workerCommandConfigOptions{}

	configOpts := config.ConfigOptions{
		{
			Name:      "runner-id",
			Usage:     "ID of the runner row this worker heartbeats and claims jobs as",
			OptType:   types.String,
			ConfigKey: &opts.RunnerID,
			Required:  true,
		},
		{
			Name:        "max-concurrent-jobs",
			Usage:       "Number of jobs this worker processes concurrently",
			OptType:     types.Int,
			ConfigKey:   &opts.MaxConcurrentJobs,
			FlagDefault: 4,
			Required:    true,
		},
		{
			Name:        "poll-interval-ms",
			Usage:       "How long, in milliseconds, an idle slot sleeps between queue polls",
			OptType:     types.Int,
			ConfigKey:   &opts.PollIntervalMS,
			FlagDefault: 1000,
			Required:    true,
		},
		{
			Name:        "queue-timeout-seconds",
			Usage:       "Blocking pop timeout, in seconds",
			OptType:     types.Int,
			ConfigKey:   &opts.QueueTimeoutSeconds,
			FlagDefault: 30,
			Required:    true,
		},
		cmdUtils.RedisURLConfigOption(&opts.RedisURL),
	}

	// crash tracker options
	crashTrackerOptions := crashtracker.CrashTrackerOptions{}
	configOpts = append(configOpts, cmdUtils.CrashTrackerTypeConfigOption(&crashTrackerOptions.CrashTrackerType))

	// metrics options
	var metricType monitor.MetricType
	configOpts = append(configOpts, cmdUtils.MetricTypeConfigOption(&metricType))

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a job worker that drains the pending queues",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.Parent().PersistentPreRun(cmd.Parent(), args)

			configOpts.Require()
			err := configOpts.SetValues()
			if err != nil {
				log.Fatalf("Error setting values of config options: %s", err.Error())
			}

			err = monitorService.Start(monitor.MetricOptions{
				MetricType:  metricType,
				Environment: globalOptions.Environment,
			})
			if err != nil {
				log.Fatalf("Error creating monitor service: %s", err.Error())
			}

			globalOptions.PopulateCrashTrackerOptions(&crashTrackerOptions)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
			defer stop()

			crashTrackerClient, err := crashtracker.GetClient(ctx, crashTrackerOptions)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating crash tracker client: %s", err.Error())
			}
			defer crashTrackerClient.FlushEvents(2 * time.Second)
			defer crashTrackerClient.Recover()

			c.run(ctx, opts, monitorService, crashTrackerClient)
		},
	}
	err := configOpts.Init(cmd)
	if err != nil {
		log.Fatalf("Error initializing a config option: %s", err.Error())
	}

	return cmd
}

func (c *WorkerCommand) run(ctx context.Context, opts workerCommandConfigOptions, monitorService monitor.MonitorServiceInterface, crashTrackerClient crashtracker.CrashTrackerClient) {
	dbConnectionPool, err := db.OpenDBConnectionPoolWithMetrics(globalOptions.DatabaseURL, monitorService)
	if err != nil {
		log.Ctx(ctx).Fatalf("error connecting to the database: %s", err.Error())
	}
	defer dbConnectionPool.Close()

	models, err := data.NewModels(dbConnectionPool)
	if err != nil {
		log.Ctx(ctx).Fatalf("error creating models: %s", err.Error())
	}

	broker, err := queue.NewRedisBroker(opts.RedisURL)
	if err != nil {
		log.Ctx(ctx).Fatalf("error connecting to redis: %s", err.Error())
	}
	defer broker.Close()

	billingService := services.NewBillingService(models, dbConnectionPool)
	healthService := services.NewRunnerHealthService(models, dbConnectionPool, broker, monitorService)
	dispatchService := services.NewJobDispatchService(models, dbConnectionPool, billingService, healthService, broker, monitorService)

	w, err := worker.NewWorker(worker.WorkerOptions{
		RunnerID:           opts.RunnerID,
		MaxConcurrentJobs:  opts.MaxConcurrentJobs,
		PollInterval:       time.Duration(opts.PollIntervalMS) * time.Millisecond,
		QueueTimeout:       time.Duration(opts.QueueTimeoutSeconds) * time.Second,
		Models:             models,
		DBConnectionPool:   dbConnectionPool,
		Broker:             broker,
		DispatchService:    dispatchService,
		Processors:         worker.NewProcessorRegistry(nil, monitorService),
		MonitorService:     monitorService,
		CrashTrackerClient: crashTrackerClient,
	})
	if err != nil {
		log.Ctx(ctx).Fatalf("error creating worker: %s", err.Error())
	}

	if err := w.Run(ctx); err != nil {
		log.Ctx(ctx).Fatalf("error running worker: %s", err.Error())
	}
}
