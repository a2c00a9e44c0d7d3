package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/db/dbtest"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/utils"
)

func Test_RunnerHealthService_ClassifyHealth(t *testing.T) {
	svc := &RunnerHealthService{
		HealthyThreshold: DefaultHealthyThreshold,
		WarningThreshold: DefaultWarningThreshold,
	}

	now := time.Now()

	testCases := []struct {
		name   string
		runner data.Runner
		want   HealthStatus
	}{
		{
			name:   "no heartbeat yet is critical",
			runner: data.Runner{Status: data.ActiveRunnerStatus},
			want:   CriticalStatus,
		},
		{
			name:   "fresh heartbeat is healthy",
			runner: data.Runner{Status: data.ActiveRunnerStatus, LastHeartbeat: utils.TimePtr(now.Add(-30 * time.Second))},
			want:   HealthyStatus,
		},
		{
			name:   "exactly at the healthy threshold is healthy",
			runner: data.Runner{Status: data.ActiveRunnerStatus, LastHeartbeat: utils.TimePtr(now.Add(-60 * time.Second))},
			want:   HealthyStatus,
		},
		{
			name:   "between thresholds is warning",
			runner: data.Runner{Status: data.ActiveRunnerStatus, LastHeartbeat: utils.TimePtr(now.Add(-2 * time.Minute))},
			want:   WarningStatus,
		},
		{
			name:   "exactly at the warning threshold is warning",
			runner: data.Runner{Status: data.ActiveRunnerStatus, LastHeartbeat: utils.TimePtr(now.Add(-180 * time.Second))},
			want:   WarningStatus,
		},
		{
			name:   "past the warning threshold is critical",
			runner: data.Runner{Status: data.ActiveRunnerStatus, LastHeartbeat: utils.TimePtr(now.Add(-5 * time.Minute))},
			want:   CriticalStatus,
		},
		{
			name:   "inactive runner is unknown",
			runner: data.Runner{Status: data.InactiveRunnerStatus, LastHeartbeat: utils.TimePtr(now)},
			want:   UnknownStatus,
		},
		{
			name:   "maintenance runner is unknown",
			runner: data.Runner{Status: data.MaintenanceRunnerStatus, LastHeartbeat: utils.TimePtr(now)},
			want:   UnknownStatus,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, svc.ClassifyHealth(&tc.runner, now))
		})
	}
}

func Test_RunnerHealthService_FindCompatibleRunners(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)
	svc := NewRunnerHealthService(models, dbConnectionPool, queue.NewMemoryBroker(), nil)

	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)

	warmRunner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "warm", "echo")
	data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, warmRunner.ID, time.Now().Add(-2*time.Minute))

	freshRunner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "fresh", "echo")
	data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, freshRunner.ID, time.Now())

	data.CreateRunnerFixture(t, ctx, dbConnectionPool, "other", "transform")

	runners, err := svc.FindCompatibleRunners(ctx, jobType.ID)
	require.NoError(t, err)
	require.Len(t, runners, 2)
	assert.Equal(t, freshRunner.ID, runners[0].ID)
	assert.Equal(t, warmRunner.ID, runners[1].ID)
}

func Test_RunnerHealthService_ReassignStalledJobs(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)
	broker := queue.NewMemoryBroker()
	svc := NewRunnerHealthService(models, dbConnectionPool, broker, nil)

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)

	stalledJob := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.RunningJobStatus, data.HighJobPriority, 100)
	data.SetJobUpdatedAtFixture(t, ctx, dbConnectionPool, stalledJob.ID, time.Now().Add(-time.Hour))

	liveJob := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.RunningJobStatus, data.MediumJobPriority, 100)

	reassigned, err := svc.ReassignStalledJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reassigned)

	updatedStalledJob, err := models.Jobs.Get(ctx, dbConnectionPool, stalledJob.ID)
	require.NoError(t, err)
	assert.Equal(t, data.PendingJobStatus, updatedStalledJob.Status)

	updatedLiveJob, err := models.Jobs.Get(ctx, dbConnectionPool, liveJob.ID)
	require.NoError(t, err)
	assert.Equal(t, data.RunningJobStatus, updatedLiveJob.Status)

	queuedJobID, err := broker.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, stalledJob.ID, queuedJobID)

	queueLen, err := broker.LengthByPriority(ctx, data.HighJobPriority)
	require.NoError(t, err)
	assert.Zero(t, queueLen)
}

func Test_RunnerHealthService_DeactivateCriticalRunners(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)
	svc := NewRunnerHealthService(models, dbConnectionPool, queue.NewMemoryBroker(), nil)

	silentRunner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "silent", "echo")
	data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, silentRunner.ID, time.Now().Add(-time.Hour))

	freshRunner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "fresh", "echo")
	data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, freshRunner.ID, time.Now())

	deactivated, err := svc.DeactivateCriticalRunners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{silentRunner.ID}, deactivated)

	updatedSilentRunner, err := models.Runners.Get(ctx, dbConnectionPool, silentRunner.ID)
	require.NoError(t, err)
	assert.Equal(t, data.InactiveRunnerStatus, updatedSilentRunner.Status)

	updatedFreshRunner, err := models.Runners.Get(ctx, dbConnectionPool, freshRunner.ID)
	require.NoError(t, err)
	assert.Equal(t, data.ActiveRunnerStatus, updatedFreshRunner.Status)
}
