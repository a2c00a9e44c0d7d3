package cmd

import (
	"context"
	"go/types"

	"github.com/spf13/cobra"
	"github.com/stellar/go/support/config"
	"github.com/stellar/go/support/log"

	cmdUtils "github.com/innosystem/dispatch-platform-backend/cmd/utils"
	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/crashtracker"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/monitor"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/scheduler"
	"github.com/innosystem/dispatch-platform-backend/internal/serve"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

type ServeCommand struct{}

type ServerServiceInterface interface {
	StartServe(opts serve.ServeOptions, httpServer serve.HTTPServerInterface)
	StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface)
	GetSchedulerJobRegistrars(ctx context.Context, serveOpts serve.ServeOptions, promotionIntervalSeconds int) ([]scheduler.SchedulerJobRegisterOption, error)
}

type ServerService struct{}

// Making sure that ServerService implements ServerServiceInterface
var _ ServerServiceInterface = (*ServerService)(nil)

func (s *ServerService) StartServe(opts serve.ServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.Serve(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting server: %s", err.Error())
	}
}

func (s *ServerService) StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.MetricsServe(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting metrics server: %s", err.Error())
	}
}

func (s *ServerService) GetSchedulerJobRegistrars(ctx context.Context, serveOpts serve.ServeOptions, promotionIntervalSeconds int) ([]scheduler.SchedulerJobRegisterOption, error) {
	dbConnectionPool, err := db.OpenDBConnectionPool(globalOptions.DatabaseURL)
	if err != nil {
		log.Ctx(ctx).Fatalf("error getting DB connection in Job Scheduler: %s", err.Error())
	}
	models, err := data.NewModels(dbConnectionPool)
	if err != nil {
		log.Ctx(ctx).Fatalf("error creating models in Job Scheduler: %s", err.Error())
	}
	broker, err := queue.NewRedisBroker(serveOpts.RedisURL)
	if err != nil {
		log.Ctx(ctx).Fatalf("error connecting to redis in Job Scheduler: %s", err.Error())
	}

	billingService := services.NewBillingService(models, dbConnectionPool)
	healthService := services.NewRunnerHealthService(models, dbConnectionPool, broker, serveOpts.MonitorService)
	dispatchService := services.NewJobDispatchService(models, dbConnectionPool, billingService, healthService, broker, serveOpts.MonitorService)

	return []scheduler.SchedulerJobRegisterOption{
		scheduler.WithStalledJobsReassignmentJobOption(healthService),
		scheduler.WithScheduledJobsPromotionJobOption(dispatchService, promotionIntervalSeconds),
		scheduler.WithRunnerHealthJobOption(healthService),
		scheduler.WithPendingJobsRequeueJobOption(dispatchService),
	}, nil
}

func (c *ServeCommand) Command(serverService ServerServiceInterface, monitorService monitor.MonitorServiceInterface) *cobra.Command {
	serveOpts := serve.ServeOptions{}
	var pollIntervalMS int
	var enableScheduler bool

	configOpts := config.ConfigOptions{
		{
			Name:        "port",
			Usage:       "Port where the server will be listening on",
			OptType:     types.Int,
			ConfigKey:   &serveOpts.Port,
			FlagDefault: 8080,
			Required:    true,
		},
		{
			Name:      "admin-api-key",
			Usage:     "The shared secret that authenticates the admin endpoints. Required outside the development environment.",
			OptType:   types.String,
			ConfigKey: &serveOpts.AdminAPIKey,
			Required:  false,
		},
		{
			Name:           "cors-allowed-origins",
			Usage:          `Cors URLs that are allowed to access the endpoints, separated by ","`,
			OptType:        types.String,
			CustomSetValue: cmdUtils.SetCorsAllowedOrigins,
			ConfigKey:      &serveOpts.CorsAllowedOrigins,
			FlagDefault:    "*",
			Required:       true,
		},
		{
			Name:        "poll-interval-ms",
			Usage:       "How often, in milliseconds, the scheduled-job promotion sweep runs",
			OptType:     types.Int,
			ConfigKey:   &pollIntervalMS,
			FlagDefault: 1000,
			Required:    true,
		},
		{
			Name:        "enable-scheduler",
			Usage:       "Enable the background scheduler (stall sweep, scheduled-job promotion, runner health)",
			OptType:     types.Bool,
			ConfigKey:   &enableScheduler,
			FlagDefault: true,
			Required:    false,
		},
		cmdUtils.RedisURLConfigOption(&serveOpts.RedisURL),
	}

	// crash tracker options
	crashTrackerOptions := crashtracker.CrashTrackerOptions{}
	configOpts = append(configOpts, cmdUtils.CrashTrackerTypeConfigOption(&crashTrackerOptions.CrashTrackerType))

	// metrics server options
	metricsServeOpts := serve.MetricsServeOptions{}
	configOpts = append(configOpts,
		cmdUtils.MetricTypeConfigOption(&metricsServeOpts.MetricType),
		&config.ConfigOption{
			Name:        "metrics-port",
			Usage:       "Port where the metrics server will be listening on",
			OptType:     types.Int,
			ConfigKey:   &metricsServeOpts.Port,
			FlagDefault: 8002,
			Required:    true,
		})

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Dispatch Platform API",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.Parent().PersistentPreRun(cmd.Parent(), args)

			// Validate & ingest input parameters
			configOpts.Require()
			err := configOpts.SetValues()
			if err != nil {
				log.Fatalf("Error setting values of config options: %s", err.Error())
			}

			if serveOpts.AdminAPIKey == "" && globalOptions.Environment != "development" {
				log.Fatalf("admin-api-key is required when environment is %q", globalOptions.Environment)
			}

			// Initializing monitor service
			metricOptions := monitor.MetricOptions{
				MetricType:  metricsServeOpts.MetricType,
				Environment: globalOptions.Environment,
			}

			err = monitorService.Start(metricOptions)
			if err != nil {
				log.Fatalf("Error creating monitor service: %s", err.Error())
			}

			// Inject crash tracker options dependencies
			globalOptions.PopulateCrashTrackerOptions(&crashTrackerOptions)

			// Inject server dependencies
			serveOpts.Environment = globalOptions.Environment
			serveOpts.GitCommit = globalOptions.GitCommit
			serveOpts.DatabaseDSN = globalOptions.DatabaseURL
			serveOpts.Version = globalOptions.Version
			serveOpts.MonitorService = monitorService

			// Inject metrics server dependencies
			metricsServeOpts.MonitorService = monitorService
			metricsServeOpts.Environment = globalOptions.Environment
		},
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()

			// Setup the Crash Tracker client
			crashTrackerClient, err := crashtracker.GetClient(ctx, crashTrackerOptions)
			if err != nil {
				log.Ctx(ctx).Fatalf("error creating crash tracker client: %s", err.Error())
			}
			serveOpts.CrashTrackerClient = crashTrackerClient

			// Starting Scheduler Service (background job) if enabled
			if enableScheduler {
				log.Ctx(ctx).Info("Starting Scheduler Service...")
				promotionIntervalSeconds := pollIntervalMS / 1000
				schedulerJobRegistrars, innerErr := serverService.GetSchedulerJobRegistrars(ctx, serveOpts, promotionIntervalSeconds)
				if innerErr != nil {
					log.Ctx(ctx).Fatalf("Error getting scheduler job registrars: %v", innerErr)
				}
				go scheduler.StartScheduler(crashTrackerClient.Clone(), schedulerJobRegistrars...)
			} else {
				log.Ctx(ctx).Warn("Scheduler Service is disabled.")
			}

			// Starting Metrics Server (background job)
			log.Ctx(ctx).Info("Starting Metrics Server...")
			go serverService.StartMetricsServe(metricsServeOpts, &serve.HTTPServer{})

			// Starting Application Server
			log.Ctx(ctx).Info("Starting Application Server...")
			serverService.StartServe(serveOpts, &serve.HTTPServer{})
		},
	}
	err := configOpts.Init(cmd)
	if err != nil {
		log.Fatalf("Error initializing a config option: %s", err.Error())
	}

	return cmd
}
