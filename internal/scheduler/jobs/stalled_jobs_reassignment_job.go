package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

const (
	stalledJobsReassignmentJobName            = "stalled_jobs_reassignment"
	stalledJobsReassignmentJobIntervalSeconds = 30
)

// stalledJobsReassignmentJob sweeps running jobs that have not progressed and
// returns them to the pending queue at their original priority.
type stalledJobsReassignmentJob struct {
	healthService *services.RunnerHealthService
}

func (j stalledJobsReassignmentJob) GetName() string {
	return stalledJobsReassignmentJobName
}

func (j stalledJobsReassignmentJob) GetInterval() time.Duration {
	return time.Second * stalledJobsReassignmentJobIntervalSeconds
}

func (j stalledJobsReassignmentJob) Execute(ctx context.Context) error {
	reassigned, err := j.healthService.ReassignStalledJobs(ctx)
	if err != nil {
		err = fmt.Errorf("error reassigning stalled jobs: %w", err)
		log.Ctx(ctx).Error(err)
		return err
	}
	if reassigned > 0 {
		log.Ctx(ctx).Infof("Reassigned %d stalled job(s)", reassigned)
	}
	return nil
}

func NewStalledJobsReassignmentJob(healthService *services.RunnerHealthService) Job {
	return &stalledJobsReassignmentJob{healthService: healthService}
}

var _ Job = new(stalledJobsReassignmentJob)
