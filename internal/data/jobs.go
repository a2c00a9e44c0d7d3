package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/innosystem/dispatch-platform-backend/db"
)

type Job struct {
	ID                 string         `json:"id" db:"id"`
	CustomerID         string         `json:"customer_id" db:"customer_id"`
	JobTypeID          string         `json:"job_type_id" db:"job_type_id"`
	ProjectID          *string        `json:"project_id,omitempty" db:"project_id"`
	Status             JobStatus      `json:"status" db:"status"`
	Priority           JobPriority    `json:"priority" db:"priority"`
	InputData          types.JSONText `json:"input_data" db:"input_data"`
	OutputData         types.JSONText `json:"output_data,omitempty" db:"output_data"`
	ErrorMessage       *string        `json:"error_message,omitempty" db:"error_message"`
	EstimatedCostCents int            `json:"estimated_cost_cents" db:"estimated_cost_cents"`
	CostCents          *int           `json:"cost_cents,omitempty" db:"cost_cents"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

type JobInsert struct {
	CustomerID         string         `db:"customer_id"`
	JobTypeID          string         `db:"job_type_id"`
	ProjectID          *string        `db:"project_id"`
	Status             JobStatus      `db:"status"`
	Priority           JobPriority    `db:"priority"`
	InputData          types.JSONText `db:"input_data"`
	EstimatedCostCents int            `db:"estimated_cost_cents"`
}

func (j *JobInsert) Validate() error {
	if strings.TrimSpace(j.CustomerID) == "" {
		return fmt.Errorf("customer_id is required")
	}
	if strings.TrimSpace(j.JobTypeID) == "" {
		return fmt.Errorf("job_type_id is required")
	}
	if err := j.Status.Validate(); err != nil {
		return fmt.Errorf("status is invalid: %w", err)
	}
	if j.Status != PendingJobStatus && j.Status != ScheduledJobStatus {
		return fmt.Errorf("a job can only be created as %s or %s", PendingJobStatus, ScheduledJobStatus)
	}
	if err := j.Priority.Validate(); err != nil {
		return fmt.Errorf("priority is invalid: %w", err)
	}
	if j.EstimatedCostCents < 0 {
		return fmt.Errorf("estimated_cost_cents cannot be negative")
	}
	return nil
}

type JobModel struct {
	dbConnectionPool db.DBConnectionPool
}

var (
	DefaultJobSortField = SortFieldCreatedAt
	DefaultJobSortOrder = SortOrderDESC
	AllowedJobFilters   = []FilterKey{FilterKeyStatus, FilterKeyCustomerID, FilterKeyJobTypeID, FilterKeyPriority, FilterKeyCreatedAtAfter, FilterKeyCreatedAtBefore, FilterKeyCompletedOnly, FilterKeyFailedOnly}
	AllowedJobSorts     = []SortField{SortFieldCreatedAt, SortFieldPriority}
)

const baseJobQuery = `
	SELECT
		j.id,
		j.customer_id,
		j.job_type_id,
		j.project_id,
		j.status,
		j.priority,
		j.input_data,
		j.output_data,
		j.error_message,
		j.estimated_cost_cents,
		j.cost_cents,
		j.created_at,
		j.updated_at,
		j.completed_at
	FROM
		jobs j
`

func (m *JobModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert JobInsert) (*Job, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating job insert: %w", err)
	}

	inputData := insert.InputData
	if inputData == nil {
		inputData = types.JSONText("{}")
	}

	var job Job
	query := `
		INSERT INTO jobs (customer_id, job_type_id, project_id, status, priority, input_data, estimated_cost_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`

	err := sqlExec.GetContext(ctx, &job, query,
		insert.CustomerID, insert.JobTypeID, insert.ProjectID, insert.Status, insert.Priority, inputData, insert.EstimatedCostCents)
	if err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}

	return &job, nil
}

func (m *JobModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Job, error) {
	var job Job
	query := baseJobQuery + "WHERE j.id = $1"

	err := sqlExec.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job ID %s: %w", id, err)
	}

	return &job, nil
}

func (m *JobModel) GetByCustomerID(ctx context.Context, sqlExec db.SQLExecuter, customerID string) ([]Job, error) {
	jobs := []Job{}
	query := baseJobQuery + "WHERE j.customer_id = $1 ORDER BY j.created_at DESC"

	err := sqlExec.SelectContext(ctx, &jobs, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("querying jobs for customer %s: %w", customerID, err)
	}

	return jobs, nil
}

func (m *JobModel) GetByStatus(ctx context.Context, sqlExec db.SQLExecuter, status JobStatus) ([]Job, error) {
	jobs := []Job{}
	query := baseJobQuery + "WHERE j.status = $1 ORDER BY j.created_at"

	err := sqlExec.SelectContext(ctx, &jobs, query, status)
	if err != nil {
		return nil, fmt.Errorf("querying jobs with status %s: %w", status, err)
	}

	return jobs, nil
}

// FindPending returns up to limit pending jobs, oldest first.
func (m *JobModel) FindPending(ctx context.Context, sqlExec db.SQLExecuter, limit int) ([]Job, error) {
	jobs := []Job{}
	query := baseJobQuery + "WHERE j.status = $1 ORDER BY j.created_at LIMIT $2"

	err := sqlExec.SelectContext(ctx, &jobs, query, PendingJobStatus, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending jobs: %w", err)
	}

	return jobs, nil
}

// FindStalled returns running jobs whose updated_at is older than the
// threshold. The claim refreshes updated_at, so a quiet row means the runner
// went silent.
func (m *JobModel) FindStalled(ctx context.Context, sqlExec db.SQLExecuter, olderThan time.Duration) ([]Job, error) {
	jobs := []Job{}
	query := baseJobQuery + "WHERE j.status = $1 AND j.updated_at < NOW() - $2::interval ORDER BY j.updated_at"

	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	err := sqlExec.SelectContext(ctx, &jobs, query, RunningJobStatus, interval)
	if err != nil {
		return nil, fmt.Errorf("querying stalled jobs: %w", err)
	}

	return jobs, nil
}

// Count returns the number of jobs matching the given query parameters.
func (m *JobModel) Count(ctx context.Context, sqlExec db.SQLExecuter, queryParams *QueryParams) (int, error) {
	var count int
	baseQuery := "SELECT count(*) FROM jobs j"

	query, params := newJobQuery(baseQuery, queryParams, false, sqlExec)

	err := sqlExec.GetContext(ctx, &count, query, params...)
	if err != nil {
		return 0, fmt.Errorf("counting jobs: %w", err)
	}
	return count, nil
}

// GetAll returns all jobs matching the given query parameters.
func (m *JobModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter, queryParams *QueryParams) ([]Job, error) {
	jobs := []Job{}

	query, params := newJobQuery(baseJobQuery, queryParams, true, sqlExec)

	err := sqlExec.SelectContext(ctx, &jobs, query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}

	return jobs, nil
}

func newJobQuery(baseQuery string, queryParams *QueryParams, paginated bool, sqlExec db.SQLExecuter) (string, []interface{}) {
	qb := NewQueryBuilder(baseQuery)
	if queryParams.Filters[FilterKeyStatus] != nil {
		qb.AddCondition("j.status = ?", queryParams.Filters[FilterKeyStatus])
	}
	if queryParams.Filters[FilterKeyCustomerID] != nil {
		qb.AddCondition("j.customer_id = ?", queryParams.Filters[FilterKeyCustomerID])
	}
	if queryParams.Filters[FilterKeyJobTypeID] != nil {
		qb.AddCondition("j.job_type_id = ?", queryParams.Filters[FilterKeyJobTypeID])
	}
	if queryParams.Filters[FilterKeyPriority] != nil {
		qb.AddCondition("j.priority = ?", queryParams.Filters[FilterKeyPriority])
	}
	if queryParams.Filters[FilterKeyCreatedAtAfter] != nil {
		qb.AddCondition("j.created_at >= ?", queryParams.Filters[FilterKeyCreatedAtAfter])
	}
	if queryParams.Filters[FilterKeyCreatedAtBefore] != nil {
		qb.AddCondition("j.created_at <= ?", queryParams.Filters[FilterKeyCreatedAtBefore])
	}
	if queryParams.Filters[FilterKeyCompletedOnly] != nil {
		qb.AddCondition("j.completed_at IS NOT NULL")
	}
	if queryParams.Filters[FilterKeyFailedOnly] != nil {
		qb.AddCondition("j.status = ?", FailedJobStatus)
	}
	if paginated {
		qb.AddSorting(queryParams.SortBy, queryParams.SortOrder, "j")
		qb.AddPagination(queryParams.Page, queryParams.PageLimit)
	}
	query, params := qb.Build()
	return sqlExec.Rebind(query), params
}

// UpdateStatus performs a guarded status transition. It only touches the row
// when the current status matches fromStatus, so two concurrent claims on the
// same job cannot both win.
func (m *JobModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, id string, fromStatus, toStatus JobStatus) (*Job, error) {
	if err := fromStatus.TransitionTo(toStatus); err != nil {
		return nil, fmt.Errorf("validating status transition: %w", err)
	}

	var job Job
	query := `
		UPDATE jobs
		SET status = $1
		WHERE id = $2 AND status = $3
		RETURNING *
	`

	err := sqlExec.GetContext(ctx, &job, query, toStatus, id, fromStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			existsErr := sqlExec.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)", id)
			if existsErr != nil {
				return nil, fmt.Errorf("checking job %s existence: %w", id, existsErr)
			}
			if !exists {
				return nil, ErrRecordNotFound
			}
			return nil, ErrMismatchNumRowsAffected
		}
		return nil, fmt.Errorf("updating status of job %s: %w", id, err)
	}

	return &job, nil
}

// SetCompleted writes the final outcome of a job run. The target status must
// be terminal and the job must still be running.
func (m *JobModel) SetCompleted(ctx context.Context, sqlExec db.SQLExecuter, id string, toStatus JobStatus, outputData types.JSONText, errorMessage *string) (*Job, error) {
	if toStatus != SucceededJobStatus && toStatus != FailedJobStatus {
		return nil, fmt.Errorf("invalid completion status: %s", toStatus)
	}

	var job Job
	query := `
		UPDATE jobs
		SET status = $1, output_data = $2, error_message = $3, completed_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING *
	`

	err := sqlExec.GetContext(ctx, &job, query, toStatus, outputData, errorMessage, id, RunningJobStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			existsErr := sqlExec.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)", id)
			if existsErr != nil {
				return nil, fmt.Errorf("checking job %s existence: %w", id, existsErr)
			}
			if !exists {
				return nil, ErrRecordNotFound
			}
			return nil, ErrMismatchNumRowsAffected
		}
		return nil, fmt.Errorf("completing job %s: %w", id, err)
	}

	return &job, nil
}

func (m *JobModel) UpdateCost(ctx context.Context, sqlExec db.SQLExecuter, id string, costCents int) error {
	result, err := sqlExec.ExecContext(ctx, "UPDATE jobs SET cost_cents = $1 WHERE id = $2", costCents, id)
	if err != nil {
		return fmt.Errorf("updating cost of job %s: %w", id, err)
	}

	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting number of rows affected: %w", err)
	}
	if numRowsAffected == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// BulkUpdateStatus moves all the given jobs from fromStatus to toStatus and
// returns how many rows changed. Jobs no longer in fromStatus are skipped.
func (m *JobModel) BulkUpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, jobIDs []string, fromStatus, toStatus JobStatus) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	if err := fromStatus.TransitionTo(toStatus); err != nil {
		return 0, fmt.Errorf("validating status transition: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1
		WHERE id = ANY($2) AND status = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, toStatus, pq.Array(jobIDs), fromStatus)
	if err != nil {
		return 0, fmt.Errorf("bulk updating job statuses: %w", err)
	}

	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting number of rows affected: %w", err)
	}

	return numRowsAffected, nil
}

// JobStats aggregates job counts and billed amounts.
type JobStats struct {
	TotalJobs               int `json:"total_jobs" db:"total_jobs"`
	PendingJobs             int `json:"pending_jobs" db:"pending_jobs"`
	RunningJobs             int `json:"running_jobs" db:"running_jobs"`
	SucceededJobs           int `json:"succeeded_jobs" db:"succeeded_jobs"`
	FailedJobs              int `json:"failed_jobs" db:"failed_jobs"`
	CancelledJobs           int `json:"cancelled_jobs" db:"cancelled_jobs"`
	ScheduledJobs           int `json:"scheduled_jobs" db:"scheduled_jobs"`
	TotalEstimatedCostCents int `json:"total_estimated_cost_cents" db:"total_estimated_cost_cents"`
	TotalCostCents          int `json:"total_cost_cents" db:"total_cost_cents"`
}

const baseJobStatsQuery = `
	SELECT
		COUNT(*) AS total_jobs,
		COUNT(*) FILTER (WHERE j.status = 'pending') AS pending_jobs,
		COUNT(*) FILTER (WHERE j.status = 'running') AS running_jobs,
		COUNT(*) FILTER (WHERE j.status = 'succeeded') AS succeeded_jobs,
		COUNT(*) FILTER (WHERE j.status = 'failed') AS failed_jobs,
		COUNT(*) FILTER (WHERE j.status = 'cancelled') AS cancelled_jobs,
		COUNT(*) FILTER (WHERE j.status = 'scheduled') AS scheduled_jobs,
		COALESCE(SUM(j.estimated_cost_cents), 0) AS total_estimated_cost_cents,
		COALESCE(SUM(j.cost_cents), 0) AS total_cost_cents
	FROM jobs j
`

func (m *JobModel) GetStats(ctx context.Context, sqlExec db.SQLExecuter) (*JobStats, error) {
	var stats JobStats
	err := sqlExec.GetContext(ctx, &stats, baseJobStatsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying job stats: %w", err)
	}
	return &stats, nil
}

func (m *JobModel) GetStatsByCustomerID(ctx context.Context, sqlExec db.SQLExecuter, customerID string) (*JobStats, error) {
	var stats JobStats
	query := baseJobStatsQuery + "WHERE j.customer_id = $1"
	err := sqlExec.GetContext(ctx, &stats, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("querying job stats for customer %s: %w", customerID, err)
	}
	return &stats, nil
}
