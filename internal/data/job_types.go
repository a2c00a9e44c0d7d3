package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/innosystem/dispatch-platform-backend/db"
)

type ProcessorType string

const (
	SyncProcessorType        ProcessorType = "sync"
	AsyncProcessorType       ProcessorType = "async"
	ExternalApiProcessorType ProcessorType = "external_api"
	BatchProcessorType       ProcessorType = "batch"
	WebhookProcessorType     ProcessorType = "webhook"
)

func (pt ProcessorType) Validate() error {
	switch ProcessorType(strings.ToLower(string(pt))) {
	case SyncProcessorType, AsyncProcessorType, ExternalApiProcessorType, BatchProcessorType, WebhookProcessorType:
		return nil
	default:
		return fmt.Errorf("invalid processor type: %s", pt)
	}
}

func ToProcessorType(s string) (ProcessorType, error) {
	err := ProcessorType(s).Validate()
	if err != nil {
		return "", err
	}
	return ProcessorType(strings.ToLower(s)), nil
}

type JobType struct {
	ID                string        `json:"id" db:"id"`
	Name              string        `json:"name" db:"name"`
	Description       *string       `json:"description,omitempty" db:"description"`
	ProcessorType     ProcessorType `json:"processor_type" db:"processor_type"`
	ProcessingLogicID string        `json:"processing_logic_id" db:"processing_logic_id"`
	StandardCostCents int           `json:"standard_cost_cents" db:"standard_cost_cents"`
	Enabled           bool          `json:"enabled" db:"enabled"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at" db:"updated_at"`
}

type JobTypeInsert struct {
	Name              string        `db:"name"`
	Description       *string       `db:"description"`
	ProcessorType     ProcessorType `db:"processor_type"`
	ProcessingLogicID string        `db:"processing_logic_id"`
	StandardCostCents int           `db:"standard_cost_cents"`
	Enabled           bool          `db:"enabled"`
}

func (jt *JobTypeInsert) Validate() error {
	if strings.TrimSpace(jt.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if err := jt.ProcessorType.Validate(); err != nil {
		return fmt.Errorf("processor_type is invalid: %w", err)
	}
	if strings.TrimSpace(jt.ProcessingLogicID) == "" {
		return fmt.Errorf("processing_logic_id is required")
	}
	if jt.StandardCostCents < 0 {
		return fmt.Errorf("standard_cost_cents cannot be negative")
	}
	return nil
}

type JobTypeModel struct {
	dbConnectionPool db.DBConnectionPool
}

const baseJobTypeQuery = `
	SELECT
		jt.id,
		jt.name,
		jt.description,
		jt.processor_type,
		jt.processing_logic_id,
		jt.standard_cost_cents,
		jt.enabled,
		jt.created_at,
		jt.updated_at
	FROM
		job_types jt
`

func (m *JobTypeModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*JobType, error) {
	var jobType JobType
	query := baseJobTypeQuery + "WHERE jt.id = $1"

	err := sqlExec.GetContext(ctx, &jobType, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job type ID %s: %w", id, err)
	}

	return &jobType, nil
}

func (m *JobTypeModel) GetByName(ctx context.Context, sqlExec db.SQLExecuter, name string) (*JobType, error) {
	var jobType JobType
	query := baseJobTypeQuery + "WHERE jt.name = $1"

	err := sqlExec.GetContext(ctx, &jobType, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job type with name %s: %w", name, err)
	}

	return &jobType, nil
}

func (m *JobTypeModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter) ([]JobType, error) {
	jobTypes := []JobType{}
	query := baseJobTypeQuery + "ORDER BY jt.name"

	err := sqlExec.SelectContext(ctx, &jobTypes, query)
	if err != nil {
		return nil, fmt.Errorf("querying job types: %w", err)
	}

	return jobTypes, nil
}

// GetAllEnabled returns the job types that can currently be submitted against.
func (m *JobTypeModel) GetAllEnabled(ctx context.Context, sqlExec db.SQLExecuter) ([]JobType, error) {
	jobTypes := []JobType{}
	query := baseJobTypeQuery + "WHERE jt.enabled = TRUE ORDER BY jt.name"

	err := sqlExec.SelectContext(ctx, &jobTypes, query)
	if err != nil {
		return nil, fmt.Errorf("querying enabled job types: %w", err)
	}

	return jobTypes, nil
}

func (m *JobTypeModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert JobTypeInsert) (*JobType, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating job type insert: %w", err)
	}

	var jobType JobType
	query := `
		INSERT INTO job_types (name, description, processor_type, processing_logic_id, standard_cost_cents, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, description, processor_type, processing_logic_id, standard_cost_cents, enabled, created_at, updated_at
	`

	err := sqlExec.GetContext(ctx, &jobType, query,
		insert.Name, insert.Description, insert.ProcessorType, insert.ProcessingLogicID, insert.StandardCostCents, insert.Enabled)
	if err != nil {
		var pqError *pq.Error
		if errors.As(err, &pqError) && pqError.Code == "23505" {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting job type: %w", err)
	}

	return &jobType, nil
}

func (m *JobTypeModel) SetEnabled(ctx context.Context, sqlExec db.SQLExecuter, id string, enabled bool) error {
	query := "UPDATE job_types SET enabled = $1 WHERE id = $2"
	result, err := sqlExec.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("updating job type enabled flag: %w", err)
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
