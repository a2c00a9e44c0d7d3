package worker

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/db/dbtest"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

func Test_NewWorker_validation(t *testing.T) {
	_, err := NewWorker(WorkerOptions{})
	assert.ErrorContains(t, err, "runner id is required")

	_, err = NewWorker(WorkerOptions{RunnerID: "r1"})
	assert.ErrorContains(t, err, "max concurrent jobs must be positive")

	_, err = NewWorker(WorkerOptions{RunnerID: "r1", MaxConcurrentJobs: 2})
	assert.ErrorContains(t, err, "dependencies are incomplete")
}

func Test_Worker_processJob_requeuesWhenClaimIsRejected(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	broker := queue.NewMemoryBroker()
	billingService := services.NewBillingService(models, dbConnectionPool)
	healthService := services.NewRunnerHealthService(models, dbConnectionPool, broker, nil)
	dispatchService := services.NewJobDispatchService(models, dbConnectionPool, billingService, healthService, broker, nil)

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)

	newWorkerFor := func(runnerID string) *Worker {
		w, newErr := NewWorker(WorkerOptions{
			RunnerID:          runnerID,
			MaxConcurrentJobs: 1,
			PollInterval:      10 * time.Millisecond,
			Models:            models,
			DBConnectionPool:  dbConnectionPool,
			Broker:            broker,
			DispatchService:   dispatchService,
		})
		require.NoError(t, newErr)
		return w
	}

	t.Run("incompatible runner puts the id back at the job's priority", func(t *testing.T) {
		incompatible := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "other-runner", "other")
		data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, incompatible.ID, time.Now())
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.HighJobPriority, 100)

		newWorkerFor(incompatible.ID).processJob(ctx, 0, job.ID)

		updatedJob, getErr := models.Jobs.Get(ctx, dbConnectionPool, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, data.PendingJobStatus, updatedJob.Status)

		depth, lenErr := broker.LengthByPriority(ctx, data.HighJobPriority)
		require.NoError(t, lenErr)
		assert.EqualValues(t, 1, depth)

		data.DeleteAllJobsFixtures(t, ctx, dbConnectionPool)
		data.DeleteAllRunnersFixtures(t, ctx, dbConnectionPool)
	})

	t.Run("unhealthy runner puts the id back", func(t *testing.T) {
		silent := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "silent-runner", "echo")
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)

		newWorkerFor(silent.ID).processJob(ctx, 0, job.ID)

		updatedJob, getErr := models.Jobs.Get(ctx, dbConnectionPool, job.ID)
		require.NoError(t, getErr)
		assert.Equal(t, data.PendingJobStatus, updatedJob.Status)

		queuedJobID, popErr := broker.Pop(ctx, time.Second)
		require.NoError(t, popErr)
		assert.Equal(t, job.ID, queuedJobID)

		data.DeleteAllJobsFixtures(t, ctx, dbConnectionPool)
		data.DeleteAllRunnersFixtures(t, ctx, dbConnectionPool)
	})

	t.Run("cancelled job is dropped for good", func(t *testing.T) {
		runner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-1", "echo")
		data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, runner.ID, time.Now())
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)
		_, updateErr := models.Jobs.UpdateStatus(ctx, dbConnectionPool, job.ID, data.PendingJobStatus, data.CancelledJobStatus)
		require.NoError(t, updateErr)

		newWorkerFor(runner.ID).processJob(ctx, 0, job.ID)

		queueLen, lenErr := broker.Length(ctx)
		require.NoError(t, lenErr)
		assert.Zero(t, queueLen)

		data.DeleteAllJobsFixtures(t, ctx, dbConnectionPool)
		data.DeleteAllRunnersFixtures(t, ctx, dbConnectionPool)
	})
}

func Test_Worker_Run_processesSubmittedJobs(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	broker := queue.NewMemoryBroker()
	billingService := services.NewBillingService(models, dbConnectionPool)
	healthService := services.NewRunnerHealthService(models, dbConnectionPool, broker, nil)
	dispatchService := services.NewJobDispatchService(models, dbConnectionPool, billingService, healthService, broker, nil)

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := data.GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)
	data.FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 1_000)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)
	runner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-1", "echo")
	data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, runner.ID, time.Now())

	job, err := dispatchService.SubmitJob(ctx, services.SubmitJobRequest{
		CustomerID: customer.ID,
		JobTypeID:  jobType.ID,
		Priority:   data.MediumJobPriority,
		InputData:  types.JSONText(`{"message":"hello"}`),
	})
	require.NoError(t, err)

	worker, err := NewWorker(WorkerOptions{
		RunnerID:          runner.ID,
		MaxConcurrentJobs: 2,
		PollInterval:      50 * time.Millisecond,
		QueueTimeout:      100 * time.Millisecond,
		Models:            models,
		DBConnectionPool:  dbConnectionPool,
		Broker:            broker,
		DispatchService:   dispatchService,
	})
	require.NoError(t, err)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- worker.Run(workerCtx) }()

	require.Eventually(t, func() bool {
		updatedJob, getErr := models.Jobs.Get(ctx, dbConnectionPool, job.ID)
		if getErr != nil {
			return false
		}
		return updatedJob.Status == data.SucceededJobStatus
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	settledJob, err := models.Jobs.Get(ctx, dbConnectionPool, job.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hello"}`, string(settledJob.OutputData))
	require.NotNil(t, settledJob.CostCents)
	assert.Equal(t, 100, *settledJob.CostCents)

	updatedWallet, err := models.Wallets.Get(ctx, dbConnectionPool, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, 900, updatedWallet.BalanceCents)
}
