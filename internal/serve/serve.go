package serve

import (
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	supporthttp "github.com/stellar/go/support/http"
	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/crashtracker"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/monitor"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httperror"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httphandler"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/middleware"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

const ServiceID = "serve"

type HTTPServerInterface interface {
	Run(conf supporthttp.Config)
}

type HTTPServer struct{}

func (h *HTTPServer) Run(conf supporthttp.Config) {
	supporthttp.Run(conf)
}

type ServeOptions struct {
	Environment        string
	GitCommit          string
	Port               int
	Version            string
	MonitorService     monitor.MonitorServiceInterface
	DatabaseDSN        string
	RedisURL           string
	AdminAPIKey        string
	CorsAllowedOrigins []string
	CrashTrackerClient crashtracker.CrashTrackerClient
	Models             *data.Models
	dbConnectionPool   db.DBConnectionPool
	broker             queue.Broker
	walletService      *services.WalletService
	billingService     *services.BillingService
	healthService      *services.RunnerHealthService
	dispatchService    *services.JobDispatchService
}

// SetupDependencies uses the serve options to setup the dependencies for the server.
func (opts *ServeOptions) SetupDependencies() error {
	// Setup crash tracker:
	// Call crash tracker FlushEvents to flush buffered events before the server terminates
	defer opts.CrashTrackerClient.FlushEvents(2 * time.Second)
	// Call crash tracker Recover for recover from unhandled panics
	defer opts.CrashTrackerClient.Recover()
	// Set crash tracker LogAndReportErrors as DefaultReportErrorFunc
	httperror.SetDefaultReportErrorFunc(opts.CrashTrackerClient.LogAndReportErrors)

	// Setup Database:
	dbConnectionPool, err := db.OpenDBConnectionPoolWithMetrics(opts.DatabaseDSN, opts.MonitorService)
	if err != nil {
		return fmt.Errorf("error connecting to the database: %w", err)
	}
	opts.Models, err = data.NewModels(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("error creating models for Serve: %w", err)
	}
	opts.dbConnectionPool = dbConnectionPool

	// Setup Queue Broker:
	if opts.RedisURL != "" {
		opts.broker, err = queue.NewRedisBroker(opts.RedisURL)
		if err != nil {
			return fmt.Errorf("error connecting to redis: %w", err)
		}
	} else {
		log.Warn("REDIS_URL is empty, falling back to the in-process queue broker")
		opts.broker = queue.NewMemoryBroker()
	}

	// Setup Services:
	opts.walletService = services.NewWalletService(opts.Models, dbConnectionPool)
	opts.billingService = services.NewBillingService(opts.Models, dbConnectionPool)
	opts.healthService = services.NewRunnerHealthService(opts.Models, dbConnectionPool, opts.broker, opts.MonitorService)
	opts.dispatchService = services.NewJobDispatchService(opts.Models, dbConnectionPool, opts.billingService, opts.healthService, opts.broker, opts.MonitorService)

	return nil
}

func Serve(opts ServeOptions, httpServer HTTPServerInterface) error {
	err := opts.SetupDependencies()
	if err != nil {
		return fmt.Errorf("error starting dependencies: %w", err)
	}

	// Start the server
	listenAddr := fmt.Sprintf(":%d", opts.Port)
	serverConfig := supporthttp.Config{
		ListenAddr:          listenAddr,
		Handler:             handleHTTP(opts),
		TCPKeepAlive:        time.Minute * 3,
		ShutdownGracePeriod: time.Second * 50,
		ReadTimeout:         time.Second * 5,
		WriteTimeout:        time.Second * 35,
		IdleTimeout:         time.Minute * 2,
		OnStarting: func() {
			log.Info("Starting Dispatch Platform Server")
			log.Infof("Listening on %s", listenAddr)
		},
		OnStopping: func() {
			log.Info("Closing the queue broker connection...")
			if err := opts.broker.Close(); err != nil {
				log.Errorf("error closing queue broker connection: %s", err.Error())
			}

			log.Info("Closing the database connection...")
			if err := opts.dbConnectionPool.Close(); err != nil {
				log.Errorf("error closing database connection: %s", err.Error())
			}

			log.Info("Stopping Dispatch Platform Server")
		},
	}
	httpServer.Run(serverConfig)
	return nil
}

func handleHTTP(o ServeOptions) *chi.Mux {
	mux := chi.NewMux()

	// Middleware
	mux.Use(middleware.CorsMiddleware(o.CorsAllowedOrigins))
	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.RecoverHandler)
	mux.Use(middleware.MetricsRequestHandler(o.MonitorService))

	mux.Get("/health", httphandler.HealthHandler{
		ReleaseID:        o.GitCommit,
		ServiceID:        ServiceID,
		Version:          o.Version,
		DBConnectionPool: o.dbConnectionPool,
		Broker:           o.broker,
	}.ServeHTTP)

	jobsHandler := httphandler.JobsHandler{
		Models:           o.Models,
		DBConnectionPool: o.dbConnectionPool,
		DispatchService:  o.dispatchService,
		BillingService:   o.billingService,
	}
	walletsHandler := httphandler.WalletsHandler{
		Models:           o.Models,
		DBConnectionPool: o.dbConnectionPool,
		WalletService:    o.walletService,
	}
	jobTypesHandler := httphandler.JobTypesHandler{Models: o.Models, DBConnectionPool: o.dbConnectionPool}
	customersHandler := httphandler.CustomersHandler{Models: o.Models, DBConnectionPool: o.dbConnectionPool}
	runnersHandler := httphandler.RunnersHandler{
		Models:           o.Models,
		DBConnectionPool: o.dbConnectionPool,
		HealthService:    o.healthService,
	}

	// Runners call home without credentials; the id alone identifies them.
	mux.Post("/runners/{id}/heartbeat", runnersHandler.PostHeartbeat)

	// Customer Routes
	mux.Group(func(r chi.Router) {
		r.Use(middleware.CustomerAuthMiddleware(o.Models))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", jobsHandler.PostJob)
			r.Get("/", jobsHandler.GetJobs)
			r.Get("/stats", jobsHandler.GetStats)
			r.Post("/cost-estimate", jobsHandler.PostCostEstimate)
			r.Get("/{id}", jobsHandler.GetJob)
			r.Patch("/{id}/cancel", jobsHandler.PatchJobCancel)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", walletsHandler.GetWallet)
			r.Get("/transactions", walletsHandler.GetTransactions)
			r.Post("/deposit", walletsHandler.PostOwnDeposit)
		})

		r.Route("/projects", func(r chi.Router) {
			projectsHandler := httphandler.ProjectsHandler{Models: o.Models, DBConnectionPool: o.dbConnectionPool}
			r.Get("/", projectsHandler.GetProjects)
			r.Post("/", projectsHandler.PostProject)
			r.Get("/{id}", projectsHandler.GetProject)
		})

		r.Route("/job-types", func(r chi.Router) {
			r.Get("/", jobTypesHandler.GetJobTypes)
			r.Get("/{id}", jobTypesHandler.GetJobType)
		})
	})

	// Reseller Routes
	mux.Group(func(r chi.Router) {
		r.Use(middleware.ResellerAuthMiddleware(o.Models))

		r.Route("/reseller/customers", func(r chi.Router) {
			r.Get("/", customersHandler.GetCustomers)
			r.Post("/", customersHandler.PostCustomer)
			r.Get("/{id}", customersHandler.GetCustomer)
		})
	})

	// Admin Routes
	mux.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuthMiddleware(o.AdminAPIKey))

		r.Route("/admin", func(r chi.Router) {
			r.Route("/customers", func(r chi.Router) {
				r.Get("/", customersHandler.GetCustomers)
				r.Post("/", customersHandler.PostCustomer)
				r.Get("/{id}", customersHandler.GetCustomer)
			})

			r.Route("/resellers", func(r chi.Router) {
				resellersHandler := httphandler.ResellersHandler{Models: o.Models, DBConnectionPool: o.dbConnectionPool}
				r.Get("/", resellersHandler.GetResellers)
				r.Post("/", resellersHandler.PostReseller)
				r.Get("/{id}", resellersHandler.GetReseller)
				r.Patch("/{id}/active", resellersHandler.PatchResellerActive)
			})

			r.Route("/runners", func(r chi.Router) {
				r.Get("/", runnersHandler.GetRunners)
				r.Post("/", runnersHandler.PostRunner)
				r.Post("/reassign-stalled", runnersHandler.PostReassignStalled)
				r.Get("/{id}", runnersHandler.GetRunner)
				r.Patch("/{id}", runnersHandler.PatchRunner)
				r.Delete("/{id}", runnersHandler.DeleteRunner)
				r.Get("/{id}/health", runnersHandler.GetHealth)
			})

			r.Route("/job-types", func(r chi.Router) {
				r.Get("/", jobTypesHandler.GetJobTypes)
				r.Post("/", jobTypesHandler.PostJobType)
				r.Get("/{id}", jobTypesHandler.GetJobType)
				r.Patch("/{id}/enabled", jobTypesHandler.PatchJobTypeEnabled)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", jobsHandler.GetJobs)
				r.Get("/stats", jobsHandler.GetStats)
				r.Get("/{id}", jobsHandler.GetJob)
				r.Patch("/{id}/cancel", jobsHandler.PatchJobCancel)
				r.Post("/{id}/claim", jobsHandler.PostJobClaim)
				r.Post("/{id}/complete", jobsHandler.PostJobComplete)
			})

			r.Route("/wallets", func(r chi.Router) {
				r.Post("/{id}/deposit", walletsHandler.PostDeposit)
				r.Post("/{id}/withdraw", walletsHandler.PostWithdraw)
			})

			r.Get("/queue", httphandler.QueueHandler{Broker: o.broker}.GetQueueStatus)
		})
	})

	return mux
}
