package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

const scheduledJobsPromotionJobName = "scheduled_jobs_promotion"

// scheduledJobsPromotionJob drains the scheduled set and moves due jobs into
// their pending FIFO.
type scheduledJobsPromotionJob struct {
	dispatchService *services.JobDispatchService
	interval        time.Duration
}

func (j scheduledJobsPromotionJob) GetName() string {
	return scheduledJobsPromotionJobName
}

func (j scheduledJobsPromotionJob) GetInterval() time.Duration {
	return j.interval
}

func (j scheduledJobsPromotionJob) Execute(ctx context.Context) error {
	promoted, err := j.dispatchService.PromoteDueJobs(ctx)
	if err != nil {
		err = fmt.Errorf("error promoting due jobs: %w", err)
		log.Ctx(ctx).Error(err)
		return err
	}
	if promoted > 0 {
		log.Ctx(ctx).Infof("Promoted %d scheduled job(s)", promoted)
	}
	return nil
}

func NewScheduledJobsPromotionJob(dispatchService *services.JobDispatchService, intervalSeconds int) Job {
	if intervalSeconds < DefaultMinimumJobIntervalSeconds {
		intervalSeconds = DefaultMinimumJobIntervalSeconds
	}
	return &scheduledJobsPromotionJob{
		dispatchService: dispatchService,
		interval:        time.Duration(intervalSeconds) * time.Second,
	}
}

var _ Job = new(scheduledJobsPromotionJob)
