package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

const (
	pendingJobsRequeueJobName            = "pending_jobs_requeue"
	pendingJobsRequeueJobIntervalSeconds = 60

	// pendingRequeueGracePeriod is how long a pending job may wait before the
	// scan considers its queue entry lost.
	pendingRequeueGracePeriod = 5 * time.Minute
	pendingRequeueBatchSize   = 100
)

// pendingJobsRequeueJob scans for pending jobs that nobody claimed and pushes
// their ids back onto the queue. Covers ids dropped by failed queue
// placements and claim rejections.
type pendingJobsRequeueJob struct {
	dispatchService *services.JobDispatchService
}

func (j pendingJobsRequeueJob) GetName() string {
	return pendingJobsRequeueJobName
}

func (j pendingJobsRequeueJob) GetInterval() time.Duration {
	return time.Second * pendingJobsRequeueJobIntervalSeconds
}

func (j pendingJobsRequeueJob) Execute(ctx context.Context) error {
	requeued, err := j.dispatchService.RequeuePendingJobs(ctx, pendingRequeueGracePeriod, pendingRequeueBatchSize)
	if err != nil {
		err = fmt.Errorf("error requeueing pending jobs: %w", err)
		log.Ctx(ctx).Error(err)
		return err
	}
	if requeued > 0 {
		log.Ctx(ctx).Infof("Requeued %d pending job(s)", requeued)
	}
	return nil
}

func NewPendingJobsRequeueJob(dispatchService *services.JobDispatchService) Job {
	return &pendingJobsRequeueJob{dispatchService: dispatchService}
}

var _ Job = new(pendingJobsRequeueJob)
