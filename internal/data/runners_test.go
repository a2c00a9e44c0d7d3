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

func Test_RunnerInsert_Validate(t *testing.T) {
	insert := RunnerInsert{}
	assert.EqualError(t, insert.Validate(), "name is required")

	insert.Name = "runner-01"
	assert.EqualError(t, insert.Validate(), "compatible_job_types cannot be empty")

	insert.CompatibleJobTypes = []string{"echo"}
	assert.NoError(t, insert.Validate())
}

func Test_Runner_IsCompatibleWith(t *testing.T) {
	runner := Runner{CompatibleJobTypes: []string{"echo", "resize_image"}}

	assert.True(t, runner.IsCompatibleWith("echo"))
	assert.True(t, runner.IsCompatibleWith("resize_image"))
	assert.False(t, runner.IsCompatibleWith("transcode_video"))
}

func Test_RunnerModel_Insert_and_Update(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	runner, err := models.Runners.Insert(ctx, RunnerInsert{
		Name:               "runner-01",
		CompatibleJobTypes: []string{"echo", "resize_image"},
	})
	require.NoError(t, err)
	assert.Equal(t, ActiveRunnerStatus, runner.Status)
	assert.ElementsMatch(t, []string{"echo", "resize_image"}, []string(runner.CompatibleJobTypes))

	t.Run("replaces the compatibility set wholesale", func(t *testing.T) {
		updated, err := models.Runners.Update(ctx, runner.ID, RunnerUpdate{
			CompatibleJobTypes: []string{"transcode_video"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"transcode_video"}, []string(updated.CompatibleJobTypes))
	})

	t.Run("updates status", func(t *testing.T) {
		status := MaintenanceRunnerStatus
		updated, err := models.Runners.Update(ctx, runner.ID, RunnerUpdate{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, MaintenanceRunnerStatus, updated.Status)
	})

	t.Run("missing runner returns ErrRecordNotFound", func(t *testing.T) {
		name := "ghost"
		_, err := models.Runners.Update(ctx, "daaa515e-5b27-44b9-b3ce-f02b77b1e863", RunnerUpdate{Name: &name})
		assert.True(t, errors.Is(err, ErrRecordNotFound))
	})
}

func Test_RunnerModel_Heartbeat(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	runner := CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-01", "echo")
	assert.Nil(t, runner.LastHeartbeat)

	require.NoError(t, models.Runners.Heartbeat(ctx, dbConnectionPool, runner.ID))

	refreshed, err := models.Runners.Get(ctx, dbConnectionPool, runner.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.LastHeartbeat)
	assert.WithinDuration(t, time.Now(), *refreshed.LastHeartbeat, time.Minute)

	err = models.Runners.Heartbeat(ctx, dbConnectionPool, "daaa515e-5b27-44b9-b3ce-f02b77b1e863")
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func Test_RunnerModel_FindCompatible(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	echoRunner := CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-01", "echo")
	CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-02", "resize_image")
	inactiveRunner := CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-03", "echo")
	require.NoError(t, models.Runners.UpdateStatus(ctx, dbConnectionPool, inactiveRunner.ID, InactiveRunnerStatus))

	compatible, err := models.Runners.FindCompatible(ctx, dbConnectionPool, "echo")
	require.NoError(t, err)
	require.Len(t, compatible, 1)
	assert.Equal(t, echoRunner.ID, compatible[0].ID)
}

func Test_RunnerModel_ListActive(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	freshRunner := CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-01", "echo")
	SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, freshRunner.ID, time.Now())

	staleRunner := CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-02", "echo")
	SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, staleRunner.ID, time.Now().Add(-time.Hour))

	// Never sent a heartbeat at all.
	CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-03", "echo")

	active, err := models.Runners.ListActive(ctx, dbConnectionPool, ActiveWindow)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, freshRunner.ID, active[0].ID)
}
