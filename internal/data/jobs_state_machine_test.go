package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_JobStatus_Validate(t *testing.T) {
	for _, status := range JobStatuses() {
		assert.NoError(t, status.Validate())
	}
	assert.NoError(t, JobStatus("PENDING").Validate())
	assert.EqualError(t, JobStatus("queued").Validate(), "invalid job status: queued")
}

func Test_JobStatus_IsTerminal(t *testing.T) {
	assert.True(t, SucceededJobStatus.IsTerminal())
	assert.True(t, FailedJobStatus.IsTerminal())
	assert.True(t, CancelledJobStatus.IsTerminal())
	assert.False(t, PendingJobStatus.IsTerminal())
	assert.False(t, RunningJobStatus.IsTerminal())
	assert.False(t, ScheduledJobStatus.IsTerminal())
}

func Test_JobStatus_TransitionTo(t *testing.T) {
	allowed := map[JobStatus][]JobStatus{
		ScheduledJobStatus: {PendingJobStatus, CancelledJobStatus},
		PendingJobStatus:   {RunningJobStatus, CancelledJobStatus},
		RunningJobStatus:   {SucceededJobStatus, FailedJobStatus, PendingJobStatus},
		SucceededJobStatus: {},
		FailedJobStatus:    {},
		CancelledJobStatus: {},
	}

	for _, from := range JobStatuses() {
		allowedTargets := allowed[from]
		for _, to := range JobStatuses() {
			err := from.TransitionTo(to)
			if containsStatus(allowedTargets, to) {
				assert.NoErrorf(t, err, "%s -> %s should be allowed", from, to)
			} else {
				assert.Errorf(t, err, "%s -> %s should be rejected", from, to)
			}
		}
	}
}

func containsStatus(statuses []JobStatus, status JobStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func Test_JobStatus_SourceStatuses(t *testing.T) {
	assert.ElementsMatch(t, []JobStatus{ScheduledJobStatus, RunningJobStatus}, PendingJobStatus.SourceStatuses())
	assert.ElementsMatch(t, []JobStatus{PendingJobStatus}, RunningJobStatus.SourceStatuses())
	assert.ElementsMatch(t, []JobStatus{ScheduledJobStatus, PendingJobStatus}, CancelledJobStatus.SourceStatuses())
	assert.Empty(t, ScheduledJobStatus.SourceStatuses())
}

func Test_ToJobStatus(t *testing.T) {
	status, err := ToJobStatus("Running")
	require.NoError(t, err)
	assert.Equal(t, RunningJobStatus, status)

	_, err = ToJobStatus("bogus")
	assert.EqualError(t, err, "invalid job status: bogus")
}
