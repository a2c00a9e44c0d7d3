package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/monitor"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
)

type HealthStatus string

const (
	HealthyStatus  HealthStatus = "healthy"
	WarningStatus  HealthStatus = "warning"
	CriticalStatus HealthStatus = "critical"
	UnknownStatus  HealthStatus = "unknown"
)

// healthRank orders statuses for dispatch preference, best first.
func healthRank(status HealthStatus) int {
	switch status {
	case HealthyStatus:
		return 0
	case WarningStatus:
		return 1
	case CriticalStatus:
		return 2
	default:
		return 3
	}
}

const (
	// DefaultHealthyThreshold is the heartbeat age below which a runner is healthy.
	DefaultHealthyThreshold = 60 * time.Second
	// DefaultWarningThreshold is the heartbeat age above which a runner is critical.
	DefaultWarningThreshold = 180 * time.Second
	// DefaultStallThreshold is how long a job may sit in running before the
	// sweep returns it to pending.
	DefaultStallThreshold = 30 * time.Minute
)

// RunnerHealthService classifies runner health, matches runners to job types,
// and sweeps stalled jobs back onto the queue.
type RunnerHealthService struct {
	models           *data.Models
	dbConnectionPool db.DBConnectionPool
	broker           queue.Broker
	monitorService   monitor.MonitorServiceInterface

	HealthyThreshold time.Duration
	WarningThreshold time.Duration
	StallThreshold   time.Duration
}

func NewRunnerHealthService(models *data.Models, dbConnectionPool db.DBConnectionPool, broker queue.Broker, monitorService monitor.MonitorServiceInterface) *RunnerHealthService {
	return &RunnerHealthService{
		models:           models,
		dbConnectionPool: dbConnectionPool,
		broker:           broker,
		monitorService:   monitorService,
		HealthyThreshold: DefaultHealthyThreshold,
		WarningThreshold: DefaultWarningThreshold,
		StallThreshold:   DefaultStallThreshold,
	}
}

// ClassifyHealth is a pure function of the runner's heartbeat at the given
// instant.
func (s *RunnerHealthService) ClassifyHealth(runner *data.Runner, now time.Time) HealthStatus {
	if runner.Status != data.ActiveRunnerStatus {
		return UnknownStatus
	}
	if runner.LastHeartbeat == nil {
		return CriticalStatus
	}

	age := now.Sub(*runner.LastHeartbeat)
	switch {
	case age <= s.HealthyThreshold:
		return HealthyStatus
	case age <= s.WarningThreshold:
		return WarningStatus
	default:
		return CriticalStatus
	}
}

// CheckRunnerHealth loads the runner and classifies it against the current
// clock.
func (s *RunnerHealthService) CheckRunnerHealth(ctx context.Context, runnerID string) (HealthStatus, error) {
	runner, err := s.models.Runners.Get(ctx, s.dbConnectionPool, runnerID)
	if err != nil {
		return "", fmt.Errorf("loading runner %s: %w", runnerID, err)
	}

	return s.ClassifyHealth(runner, time.Now()), nil
}

// FindCompatibleRunners returns all active runners compatible with the job
// type, healthiest first, ties broken by runner id for determinism.
func (s *RunnerHealthService) FindCompatibleRunners(ctx context.Context, jobTypeID string) ([]data.Runner, error) {
	jobType, err := s.models.JobTypes.Get(ctx, s.dbConnectionPool, jobTypeID)
	if err != nil {
		return nil, fmt.Errorf("loading job type %s: %w", jobTypeID, err)
	}

	runners, err := s.models.Runners.FindCompatible(ctx, s.dbConnectionPool, jobType.Name)
	if err != nil {
		return nil, fmt.Errorf("finding runners compatible with %s: %w", jobType.Name, err)
	}

	now := time.Now()
	sort.SliceStable(runners, func(i, j int) bool {
		ri := healthRank(s.ClassifyHealth(&runners[i], now))
		rj := healthRank(s.ClassifyHealth(&runners[j], now))
		if ri != rj {
			return ri < rj
		}
		return runners[i].ID < runners[j].ID
	})

	return runners, nil
}

// ReassignStalledJobs finds running jobs whose updated_at is older than the
// stall threshold, returns them to pending, and re-pushes each at its
// original priority. Returns the count reassigned.
func (s *RunnerHealthService) ReassignStalledJobs(ctx context.Context) (int, error) {
	stalledJobs, err := s.models.Jobs.FindStalled(ctx, s.dbConnectionPool, s.StallThreshold)
	if err != nil {
		return 0, fmt.Errorf("finding stalled jobs: %w", err)
	}

	reassigned := 0
	for _, job := range stalledJobs {
		_, err = s.models.Jobs.UpdateStatus(ctx, s.dbConnectionPool, job.ID, data.RunningJobStatus, data.PendingJobStatus)
		if err != nil {
			log.Ctx(ctx).Errorf("returning stalled job %s to pending: %v", job.ID, err)
			continue
		}

		if err = s.broker.Push(ctx, job.ID, job.Priority); err != nil {
			// The row is pending again; the next sweep or a pending scan
			// will pick it up.
			log.Ctx(ctx).Errorf("re-pushing stalled job %s: %v", job.ID, err)
			continue
		}

		reassigned++
		if s.monitorService != nil {
			if monitorErr := s.monitorService.MonitorCounters(monitor.JobsReassignedCounterTag, nil); monitorErr != nil {
				log.Ctx(ctx).Errorf("monitoring reassigned jobs counter: %v", monitorErr)
			}
		}
	}

	if reassigned > 0 {
		log.Ctx(ctx).Infof("stall sweep returned %d job(s) to pending", reassigned)
	}

	return reassigned, nil
}

// DeactivateCriticalRunners flips active runners whose health is critical to
// inactive so dispatch stops considering them. Returns the ids deactivated.
func (s *RunnerHealthService) DeactivateCriticalRunners(ctx context.Context) ([]string, error) {
	runners, err := s.models.Runners.GetAll(ctx, s.dbConnectionPool)
	if err != nil {
		return nil, fmt.Errorf("loading runners: %w", err)
	}

	now := time.Now()
	var deactivated []string
	for i := range runners {
		runner := &runners[i]
		if runner.Status != data.ActiveRunnerStatus {
			continue
		}
		if s.ClassifyHealth(runner, now) != CriticalStatus {
			continue
		}

		if err = s.models.Runners.UpdateStatus(ctx, s.dbConnectionPool, runner.ID, data.InactiveRunnerStatus); err != nil {
			log.Ctx(ctx).Errorf("deactivating runner %s: %v", runner.ID, err)
			continue
		}
		deactivated = append(deactivated, runner.ID)
	}

	if len(deactivated) > 0 {
		log.Ctx(ctx).Infof("deactivated %d runner(s) with critical health", len(deactivated))
	}

	return deactivated, nil
}
