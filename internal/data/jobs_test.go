package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/db/dbtest"
)

func Test_JobInsert_Validate(t *testing.T) {
	insert := JobInsert{}
	assert.EqualError(t, insert.Validate(), "customer_id is required")

	insert.CustomerID = "customer-id"
	assert.EqualError(t, insert.Validate(), "job_type_id is required")

	insert.JobTypeID = "job-type-id"
	assert.EqualError(t, insert.Validate(), "status is invalid: invalid job status: ")

	insert.Status = RunningJobStatus
	assert.EqualError(t, insert.Validate(), "a job can only be created as pending or scheduled")

	insert.Status = PendingJobStatus
	insert.Priority = JobPriority(9)
	assert.EqualError(t, insert.Validate(), "priority is invalid: invalid job priority: 9")

	insert.Priority = MediumJobPriority
	insert.EstimatedCostCents = -1
	assert.EqualError(t, insert.Validate(), "estimated_cost_cents cannot be negative")

	insert.EstimatedCostCents = 100
	assert.NoError(t, insert.Validate())
}

func Test_JobModel_UpdateStatus(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	jobType := CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", SyncProcessorType, 100)

	t.Run("guarded transition only lets one claim win", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, PendingJobStatus, MediumJobPriority, 100)

		claimed, err := models.Jobs.UpdateStatus(ctx, dbConnectionPool, job.ID, PendingJobStatus, RunningJobStatus)
		require.NoError(t, err)
		assert.Equal(t, RunningJobStatus, claimed.Status)

		// A second claim finds the row no longer pending.
		_, err = models.Jobs.UpdateStatus(ctx, dbConnectionPool, job.ID, PendingJobStatus, RunningJobStatus)
		assert.True(t, errors.Is(err, ErrMismatchNumRowsAffected))
	})

	t.Run("rejects illegal transitions before touching the database", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, PendingJobStatus, MediumJobPriority, 100)

		_, err := models.Jobs.UpdateStatus(ctx, dbConnectionPool, job.ID, PendingJobStatus, SucceededJobStatus)
		require.Error(t, err)
		assert.ErrorContains(t, err, "cannot transition from pending to succeeded")
	})

	t.Run("missing job returns ErrRecordNotFound", func(t *testing.T) {
		_, err := models.Jobs.UpdateStatus(ctx, dbConnectionPool, "daaa515e-5b27-44b9-b3ce-f02b77b1e863", PendingJobStatus, RunningJobStatus)
		assert.True(t, errors.Is(err, ErrRecordNotFound))
	})
}

func Test_JobModel_SetCompleted(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	jobType := CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", SyncProcessorType, 100)

	t.Run("records outcome and completion time", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, RunningJobStatus, MediumJobPriority, 100)

		errMsg := "processor exploded"
		completed, err := models.Jobs.SetCompleted(ctx, dbConnectionPool, job.ID, FailedJobStatus, nil, &errMsg)
		require.NoError(t, err)
		assert.Equal(t, FailedJobStatus, completed.Status)
		require.NotNil(t, completed.ErrorMessage)
		assert.Equal(t, errMsg, *completed.ErrorMessage)
		assert.NotNil(t, completed.CompletedAt)
	})

	t.Run("second completion loses the guard", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, RunningJobStatus, MediumJobPriority, 100)

		_, err := models.Jobs.SetCompleted(ctx, dbConnectionPool, job.ID, SucceededJobStatus, nil, nil)
		require.NoError(t, err)

		_, err = models.Jobs.SetCompleted(ctx, dbConnectionPool, job.ID, FailedJobStatus, nil, nil)
		assert.True(t, errors.Is(err, ErrMismatchNumRowsAffected))
	})

	t.Run("rejects non-terminal target status", func(t *testing.T) {
		job := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, RunningJobStatus, MediumJobPriority, 100)

		_, err := models.Jobs.SetCompleted(ctx, dbConnectionPool, job.ID, CancelledJobStatus, nil, nil)
		assert.EqualError(t, err, "invalid completion status: cancelled")
	})
}

func Test_JobModel_FindStalled(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	jobType := CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", SyncProcessorType, 100)

	staleJob := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, RunningJobStatus, MediumJobPriority, 100)
	SetJobUpdatedAtFixture(t, ctx, dbConnectionPool, staleJob.ID, time.Now().Add(-time.Hour))

	// A fresh running job and an old pending one must not show up.
	CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, RunningJobStatus, MediumJobPriority, 100)
	oldPending := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, PendingJobStatus, MediumJobPriority, 100)
	SetJobUpdatedAtFixture(t, ctx, dbConnectionPool, oldPending.ID, time.Now().Add(-time.Hour))

	stalled, err := models.Jobs.FindStalled(ctx, dbConnectionPool, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, staleJob.ID, stalled[0].ID)
}

func Test_JobModel_GetAll_and_Count(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	otherCustomer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Globex", "globex@example.com", nil)
	jobType := CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", SyncProcessorType, 100)

	CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, PendingJobStatus, MediumJobPriority, 100)
	CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, RunningJobStatus, HighJobPriority, 150)
	CreateJobFixture(t, ctx, dbConnectionPool, otherCustomer.ID, jobType.ID, PendingJobStatus, LowJobPriority, 100)

	t.Run("filters by customer and status", func(t *testing.T) {
		queryParams := &QueryParams{
			Page:      1,
			PageLimit: 20,
			SortBy:    DefaultJobSortField,
			SortOrder: DefaultJobSortOrder,
			Filters: map[FilterKey]interface{}{
				FilterKeyCustomerID: customer.ID,
				FilterKeyStatus:     PendingJobStatus,
			},
		}

		jobs, err := models.Jobs.GetAll(ctx, dbConnectionPool, queryParams)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, customer.ID, jobs[0].CustomerID)
		assert.Equal(t, PendingJobStatus, jobs[0].Status)

		count, err := models.Jobs.Count(ctx, dbConnectionPool, queryParams)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("pagination caps the page size", func(t *testing.T) {
		queryParams := &QueryParams{
			Page:      1,
			PageLimit: 2,
			SortBy:    DefaultJobSortField,
			SortOrder: DefaultJobSortOrder,
			Filters:   map[FilterKey]interface{}{},
		}

		jobs, err := models.Jobs.GetAll(ctx, dbConnectionPool, queryParams)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)

		count, err := models.Jobs.Count(ctx, dbConnectionPool, queryParams)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func Test_JobModel_GetStats(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	jobType := CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", SyncProcessorType, 100)

	CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, PendingJobStatus, MediumJobPriority, 100)
	running := CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, RunningJobStatus, HighJobPriority, 150)
	require.NoError(t, models.Jobs.UpdateCost(ctx, dbConnectionPool, running.ID, 150))

	stats, err := models.Jobs.GetStats(ctx, dbConnectionPool)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.PendingJobs)
	assert.Equal(t, 1, stats.RunningJobs)
	assert.Equal(t, 250, stats.TotalEstimatedCostCents)
	assert.Equal(t, 150, stats.TotalCostCents)

	statsByCustomer, err := models.Jobs.GetStatsByCustomerID(ctx, dbConnectionPool, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, statsByCustomer.TotalJobs)

	otherStats, err := models.Jobs.GetStatsByCustomerID(ctx, dbConnectionPool, "daaa515e-5b27-44b9-b3ce-f02b77b1e863")
	require.NoError(t, err)
	assert.Equal(t, 0, otherStats.TotalJobs)
}
