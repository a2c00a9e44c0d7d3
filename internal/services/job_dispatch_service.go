package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/monitor"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
)

// SubmitJobRequest carries everything needed to admit a job.
type SubmitJobRequest struct {
	CustomerID string
	JobTypeID  string
	ProjectID  *string
	Priority   data.JobPriority
	InputData  types.JSONText
	// RunAt, when set, parks the job on the scheduled set instead of the
	// pending queues.
	RunAt *time.Time
}

// JobDispatchService owns the job lifecycle: admission, claiming, completion
// and cancellation. Money movements are delegated to BillingService, queue
// placement to the Broker.
type JobDispatchService struct {
	models           *data.Models
	dbConnectionPool db.DBConnectionPool
	billingService   *BillingService
	healthService    *RunnerHealthService
	broker           queue.Broker
	monitorService   monitor.MonitorServiceInterface
}

func NewJobDispatchService(
	models *data.Models,
	dbConnectionPool db.DBConnectionPool,
	billingService *BillingService,
	healthService *RunnerHealthService,
	broker queue.Broker,
	monitorService monitor.MonitorServiceInterface,
) *JobDispatchService {
	return &JobDispatchService{
		models:           models,
		dbConnectionPool: dbConnectionPool,
		billingService:   billingService,
		healthService:    healthService,
		broker:           broker,
		monitorService:   monitorService,
	}
}

// SubmitJob admits a job. The job insert and the funds reservation commit in
// one database transaction, so an insufficient wallet leaves no job row
// behind. Queue placement happens after the commit.
func (s *JobDispatchService) SubmitJob(ctx context.Context, req SubmitJobRequest) (*data.Job, error) {
	jobType, err := s.models.JobTypes.Get(ctx, s.dbConnectionPool, req.JobTypeID)
	if err != nil {
		return nil, fmt.Errorf("loading job type %s: %w", req.JobTypeID, err)
	}
	if !jobType.Enabled {
		return nil, ErrJobTypeDisabled
	}

	// The reservation holds the standard cost. Priority pricing applies at
	// settlement, not at admission.
	estimatedCostCents := jobType.StandardCostCents

	status := data.PendingJobStatus
	if req.RunAt != nil && req.RunAt.After(time.Now()) {
		status = data.ScheduledJobStatus
	}

	job, err := db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Job, error) {
		insertedJob, innerErr := s.models.Jobs.Insert(ctx, dbTx, data.JobInsert{
			CustomerID:         req.CustomerID,
			JobTypeID:          req.JobTypeID,
			ProjectID:          req.ProjectID,
			Status:             status,
			Priority:           req.Priority,
			InputData:          req.InputData,
			EstimatedCostCents: estimatedCostCents,
		})
		if innerErr != nil {
			return nil, fmt.Errorf("inserting job: %w", innerErr)
		}

		if innerErr = s.billingService.reserveForJobInTx(ctx, dbTx, insertedJob); innerErr != nil {
			return nil, innerErr
		}

		return insertedJob, nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("submitting job for customer %s: %w", req.CustomerID, err)
	}

	// The database is the source of truth. A failed queue placement is
	// logged; the pending scan or the scheduled promotion pass recovers it.
	if status == data.ScheduledJobStatus {
		if err = s.broker.Schedule(ctx, job.ID, *req.RunAt); err != nil {
			log.Ctx(ctx).Errorf("scheduling job %s for %s: %v", job.ID, req.RunAt.Format(time.RFC3339), err)
		}
	} else {
		if err = s.broker.Push(ctx, job.ID, job.Priority); err != nil {
			log.Ctx(ctx).Errorf("enqueueing job %s: %v", job.ID, err)
		}
	}

	s.monitorSubmission(ctx, jobType.Name, job.Priority)

	return job, nil
}

func (s *JobDispatchService) monitorSubmission(ctx context.Context, jobTypeName string, priority data.JobPriority) {
	if s.monitorService == nil {
		return
	}
	labels := map[string]string{
		"job_type": jobTypeName,
		"priority": strconv.Itoa(int(priority)),
	}
	if err := s.monitorService.MonitorCounters(monitor.JobsSubmittedCounterTag, labels); err != nil {
		log.Ctx(ctx).Errorf("monitoring submitted jobs counter: %v", err)
	}
}

// PromoteDueJobs moves scheduled jobs whose run time has arrived onto the
// pending queues. Returns the number promoted.
func (s *JobDispatchService) PromoteDueJobs(ctx context.Context) (int, error) {
	dueJobIDs, err := s.broker.DrainDue(ctx)
	if err != nil {
		return 0, fmt.Errorf("draining due jobs: %w", err)
	}

	promoted := 0
	for _, jobID := range dueJobIDs {
		job, err := s.models.Jobs.UpdateStatus(ctx, s.dbConnectionPool, jobID, data.ScheduledJobStatus, data.PendingJobStatus)
		if err != nil {
			// Cancelled while scheduled, or already promoted. Skip it.
			if errors.Is(err, data.ErrMismatchNumRowsAffected) || errors.Is(err, data.ErrRecordNotFound) {
				continue
			}
			log.Ctx(ctx).Errorf("promoting scheduled job %s: %v", jobID, err)
			continue
		}

		if err = s.broker.Push(ctx, job.ID, job.Priority); err != nil {
			log.Ctx(ctx).Errorf("enqueueing promoted job %s: %v", job.ID, err)
			continue
		}

		promoted++
		if s.monitorService != nil {
			if monitorErr := s.monitorService.MonitorCounters(monitor.JobsPromotedCounterTag, nil); monitorErr != nil {
				log.Ctx(ctx).Errorf("monitoring promoted jobs counter: %v", monitorErr)
			}
		}
	}

	return promoted, nil
}

// RequeuePendingJobs re-pushes pending jobs that have sat unclaimed past the
// grace period. It recovers ids lost to failed queue placements; the guarded
// pending to running transition makes a duplicate queue entry harmless.
// Returns the number requeued.
func (s *JobDispatchService) RequeuePendingJobs(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	pendingJobs, err := s.models.Jobs.FindPending(ctx, s.dbConnectionPool, limit)
	if err != nil {
		return 0, fmt.Errorf("finding pending jobs: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	requeued := 0
	for _, job := range pendingJobs {
		if job.UpdatedAt.After(cutoff) {
			continue
		}

		if err = s.broker.Push(ctx, job.ID, job.Priority); err != nil {
			log.Ctx(ctx).Errorf("requeueing pending job %s: %v", job.ID, err)
			continue
		}
		requeued++
	}

	if requeued > 0 {
		log.Ctx(ctx).Infof("pending scan requeued %d job(s)", requeued)
	}

	return requeued, nil
}

// ClaimJob assigns a pending job to a runner. The runner must be compatible
// with the job type and must have heartbeated recently. The pending to
// running transition is guarded, so of N concurrent claimants exactly one
// wins; the losers get ErrInvalidStateTransition.
func (s *JobDispatchService) ClaimJob(ctx context.Context, jobID, runnerID string) (*data.Job, error) {
	job, err := s.models.Jobs.Get(ctx, s.dbConnectionPool, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	jobType, err := s.models.JobTypes.Get(ctx, s.dbConnectionPool, job.JobTypeID)
	if err != nil {
		return nil, fmt.Errorf("loading job type %s: %w", job.JobTypeID, err)
	}

	runner, err := s.models.Runners.Get(ctx, s.dbConnectionPool, runnerID)
	if err != nil {
		return nil, fmt.Errorf("loading runner %s: %w", runnerID, err)
	}

	if !runner.IsCompatibleWith(jobType.Name) {
		return nil, ErrRunnerIncompatible
	}
	if health := s.healthService.ClassifyHealth(runner, time.Now()); health == CriticalStatus || health == UnknownStatus {
		return nil, ErrRunnerUnhealthy
	}

	claimedJob, err := s.models.Jobs.UpdateStatus(ctx, s.dbConnectionPool, job.ID, data.PendingJobStatus, data.RunningJobStatus)
	if err != nil {
		if errors.Is(err, data.ErrMismatchNumRowsAffected) {
			return nil, ErrInvalidStateTransition
		}
		return nil, fmt.Errorf("claiming job %s for runner %s: %w", job.ID, runnerID, err)
	}

	return claimedJob, nil
}

// CompleteJob finalizes a running job and settles its billing. The terminal
// write and the settlement commit in one transaction: a billing failure rolls
// the terminal write back and the job stays running, so completion can be
// retried. The terminal write is guarded, so only one completion per job
// reaches billing. On failure the customer is charged the failure share of
// the estimate.
func (s *JobDispatchService) CompleteJob(ctx context.Context, jobID string, succeeded bool, outputData types.JSONText, errorMessage *string) (*data.Job, error) {
	toStatus := data.SucceededJobStatus
	if !succeeded {
		toStatus = data.FailedJobStatus
	}

	job, err := db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Job, error) {
		completedJob, innerErr := s.models.Jobs.SetCompleted(ctx, dbTx, jobID, toStatus, outputData, errorMessage)
		if innerErr != nil {
			return nil, innerErr
		}

		actualCostCents, innerErr := s.billingService.settleJobInTx(ctx, dbTx, completedJob, succeeded)
		if innerErr != nil {
			return nil, innerErr
		}
		completedJob.CostCents = &actualCostCents

		return completedJob, nil
	})
	if err != nil {
		if errors.Is(err, data.ErrMismatchNumRowsAffected) {
			return nil, ErrInvalidStateTransition
		}
		if errors.Is(err, ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("completing job %s: %w", jobID, err)
	}

	s.monitorCompletion(ctx, job)

	return job, nil
}

func (s *JobDispatchService) monitorCompletion(ctx context.Context, job *data.Job) {
	if s.monitorService == nil {
		return
	}
	labels := monitor.JobLabels{
		JobType:  job.JobTypeID,
		Priority: strconv.Itoa(int(job.Priority)),
		Status:   string(job.Status),
	}
	if err := s.monitorService.MonitorCounters(monitor.JobsProcessedCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring processed jobs counter: %v", err)
	}
}

// CancelJob cancels a job that has not started running. The reservation is
// released in full; no charge applies. The status flip and the release commit
// in one transaction, so a cancelled job never keeps its hold. Running and
// terminal jobs cannot be cancelled.
func (s *JobDispatchService) CancelJob(ctx context.Context, jobID string) (*data.Job, error) {
	job, err := s.models.Jobs.Get(ctx, s.dbConnectionPool, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	if job.Status != data.PendingJobStatus && job.Status != data.ScheduledJobStatus {
		return nil, ErrInvalidStateTransition
	}

	cancelledJob, err := db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Job, error) {
		cancelled, innerErr := s.models.Jobs.UpdateStatus(ctx, dbTx, jobID, job.Status, data.CancelledJobStatus)
		if innerErr != nil {
			return nil, innerErr
		}

		if innerErr = s.billingService.releaseForJobInTx(ctx, dbTx, cancelled); innerErr != nil {
			return nil, innerErr
		}

		return cancelled, nil
	})
	if err != nil {
		if errors.Is(err, data.ErrMismatchNumRowsAffected) {
			return nil, ErrInvalidStateTransition
		}
		return nil, fmt.Errorf("cancelling job %s: %w", jobID, err)
	}

	return cancelledJob, nil
}

// GetJob loads a single job.
func (s *JobDispatchService) GetJob(ctx context.Context, jobID string) (*data.Job, error) {
	return s.models.Jobs.Get(ctx, s.dbConnectionPool, jobID)
}

type JobsPaginatedResponse struct {
	TotalJobs int
	Jobs      []data.Job
}

// GetJobsWithCount returns the filtered jobs page and the total count in one
// transaction, so both reflect the same snapshot.
func (s *JobDispatchService) GetJobsWithCount(ctx context.Context, queryParams *data.QueryParams) (*JobsPaginatedResponse, error) {
	return db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*JobsPaginatedResponse, error) {
		totalJobs, err := s.models.Jobs.Count(ctx, dbTx, queryParams)
		if err != nil {
			return nil, fmt.Errorf("error counting jobs: %w", err)
		}

		var jobs []data.Job
		if totalJobs != 0 {
			jobs, err = s.models.Jobs.GetAll(ctx, dbTx, queryParams)
			if err != nil {
				return nil, fmt.Errorf("error querying jobs: %w", err)
			}
		}

		return &JobsPaginatedResponse{
			TotalJobs: totalJobs,
			Jobs:      jobs,
		}, nil
	})
}
