package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

const (
	runnerHealthJobName            = "runner_health_check"
	runnerHealthJobIntervalSeconds = 60
)

// runnerHealthJob deactivates runners whose heartbeat went critical so the
// dispatcher stops considering them.
type runnerHealthJob struct {
	healthService *services.RunnerHealthService
}

func (j runnerHealthJob) GetName() string {
	return runnerHealthJobName
}

func (j runnerHealthJob) GetInterval() time.Duration {
	return time.Second * runnerHealthJobIntervalSeconds
}

func (j runnerHealthJob) Execute(ctx context.Context) error {
	deactivated, err := j.healthService.DeactivateCriticalRunners(ctx)
	if err != nil {
		err = fmt.Errorf("error deactivating critical runners: %w", err)
		log.Ctx(ctx).Error(err)
		return err
	}
	if len(deactivated) > 0 {
		log.Ctx(ctx).Warnf("Deactivated %d runner(s) with critical heartbeat: %v", len(deactivated), deactivated)
	}
	return nil
}

func NewRunnerHealthJob(healthService *services.RunnerHealthService) Job {
	return &runnerHealthJob{healthService: healthService}
}

var _ Job = new(runnerHealthJob)
