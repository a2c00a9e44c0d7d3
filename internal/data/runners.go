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

type RunnerStatus string

const (
	ActiveRunnerStatus      RunnerStatus = "active"
	InactiveRunnerStatus    RunnerStatus = "inactive"
	MaintenanceRunnerStatus RunnerStatus = "maintenance"
)

func (rs RunnerStatus) Validate() error {
	switch RunnerStatus(strings.ToLower(string(rs))) {
	case ActiveRunnerStatus, InactiveRunnerStatus, MaintenanceRunnerStatus:
		return nil
	default:
		return fmt.Errorf("invalid runner status: %s", rs)
	}
}

// ActiveWindow is the heartbeat recency used to consider a runner for
// dispatch listings.
const ActiveWindow = 5 * time.Minute

type Runner struct {
	ID                 string         `json:"id" db:"id"`
	Name               string         `json:"name" db:"name"`
	Description        *string        `json:"description,omitempty" db:"description"`
	Status             RunnerStatus   `json:"status" db:"status"`
	CompatibleJobTypes pq.StringArray `json:"compatible_job_types" db:"compatible_job_types"`
	LastHeartbeat      *time.Time     `json:"last_heartbeat,omitempty" db:"last_heartbeat"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at" db:"updated_at"`
}

// IsCompatibleWith reports whether the runner may execute the given job type.
func (r *Runner) IsCompatibleWith(jobTypeName string) bool {
	for _, name := range r.CompatibleJobTypes {
		if name == jobTypeName {
			return true
		}
	}
	return false
}

type RunnerInsert struct {
	Name               string   `db:"name"`
	Description        *string  `db:"description"`
	CompatibleJobTypes []string `db:"compatible_job_types"`
}

func (r *RunnerInsert) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.CompatibleJobTypes) == 0 {
		return fmt.Errorf("compatible_job_types cannot be empty")
	}
	return nil
}

type RunnerUpdate struct {
	Name               *string       `db:"name"`
	Description        *string       `db:"description"`
	Status             *RunnerStatus `db:"status"`
	CompatibleJobTypes []string
}

type RunnerModel struct {
	dbConnectionPool db.DBConnectionPool
}

const baseRunnerQuery = `
	SELECT
		r.id,
		r.name,
		r.description,
		r.status,
		r.last_heartbeat,
		r.created_at,
		r.updated_at,
		COALESCE(
			ARRAY(SELECT c.job_type_name FROM runner_job_type_compatibility c WHERE c.runner_id = r.id ORDER BY c.job_type_name),
			'{}'
		) AS compatible_job_types
	FROM
		runners r
`

func (m *RunnerModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Runner, error) {
	var runner Runner
	query := baseRunnerQuery + "WHERE r.id = $1"

	err := sqlExec.GetContext(ctx, &runner, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying runner ID %s: %w", id, err)
	}

	return &runner, nil
}

func (m *RunnerModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter) ([]Runner, error) {
	runners := []Runner{}
	query := baseRunnerQuery + "ORDER BY r.id"

	err := sqlExec.SelectContext(ctx, &runners, query)
	if err != nil {
		return nil, fmt.Errorf("querying runners: %w", err)
	}

	return runners, nil
}

// ListActive returns active runners whose heartbeat falls within the active
// window. Ordered by id for deterministic dispatch.
func (m *RunnerModel) ListActive(ctx context.Context, sqlExec db.SQLExecuter, window time.Duration) ([]Runner, error) {
	runners := []Runner{}
	query := baseRunnerQuery + "WHERE r.status = $1 AND r.last_heartbeat >= NOW() - $2::interval ORDER BY r.id"

	interval := fmt.Sprintf("%d seconds", int(window.Seconds()))
	err := sqlExec.SelectContext(ctx, &runners, query, ActiveRunnerStatus, interval)
	if err != nil {
		return nil, fmt.Errorf("querying active runners: %w", err)
	}

	return runners, nil
}

// Insert registers a runner and its compatibility set in one transaction.
func (m *RunnerModel) Insert(ctx context.Context, insert RunnerInsert) (*Runner, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating runner insert: %w", err)
	}

	return db.RunInTransactionWithResult(ctx, m.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*Runner, error) {
		var runnerID string
		query := `
			INSERT INTO runners (name, description)
			VALUES ($1, $2)
			RETURNING id
		`
		err := dbTx.GetContext(ctx, &runnerID, query, insert.Name, insert.Description)
		if err != nil {
			return nil, fmt.Errorf("inserting runner: %w", err)
		}

		err = replaceRunnerCompatibility(ctx, dbTx, runnerID, insert.CompatibleJobTypes)
		if err != nil {
			return nil, err
		}

		return m.Get(ctx, dbTx, runnerID)
	})
}

// Update modifies the runner and, when a compatibility set is provided,
// replaces it wholesale.
func (m *RunnerModel) Update(ctx context.Context, id string, update RunnerUpdate) (*Runner, error) {
	if update.Status != nil {
		if err := update.Status.Validate(); err != nil {
			return nil, fmt.Errorf("validating runner status: %w", err)
		}
	}

	return db.RunInTransactionWithResult(ctx, m.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*Runner, error) {
		setClause, params := BuildSetClause(struct {
			Name        *string       `db:"name"`
			Description *string       `db:"description"`
			Status      *RunnerStatus `db:"status"`
		}{Name: update.Name, Description: update.Description, Status: update.Status})

		if setClause != "" {
			query := fmt.Sprintf("UPDATE runners SET %s WHERE id = ?", setClause)
			params = append(params, id)
			result, err := dbTx.ExecContext(ctx, dbTx.Rebind(query), params...)
			if err != nil {
				return nil, fmt.Errorf("updating runner %s: %w", id, err)
			}
			numRowsAffected, err := result.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("getting number of rows affected: %w", err)
			}
			if numRowsAffected == 0 {
				return nil, ErrRecordNotFound
			}
		}

		if update.CompatibleJobTypes != nil {
			_, err := dbTx.ExecContext(ctx, "DELETE FROM runner_job_type_compatibility WHERE runner_id = $1", id)
			if err != nil {
				return nil, fmt.Errorf("clearing compatibility set for runner %s: %w", id, err)
			}
			err = replaceRunnerCompatibility(ctx, dbTx, id, update.CompatibleJobTypes)
			if err != nil {
				return nil, err
			}
		}

		return m.Get(ctx, dbTx, id)
	})
}

func replaceRunnerCompatibility(ctx context.Context, sqlExec db.SQLExecuter, runnerID string, jobTypeNames []string) error {
	for _, name := range jobTypeNames {
		_, err := sqlExec.ExecContext(ctx,
			"INSERT INTO runner_job_type_compatibility (runner_id, job_type_name) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			runnerID, name)
		if err != nil {
			return fmt.Errorf("inserting compatibility %s for runner %s: %w", name, runnerID, err)
		}
	}
	return nil
}

func (m *RunnerModel) Delete(ctx context.Context, sqlExec db.SQLExecuter, id string) error {
	result, err := sqlExec.ExecContext(ctx, "DELETE FROM runners WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting runner %s: %w", id, err)
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

// Heartbeat stamps last_heartbeat with the database clock. Idempotent.
func (m *RunnerModel) Heartbeat(ctx context.Context, sqlExec db.SQLExecuter, id string) error {
	result, err := sqlExec.ExecContext(ctx, "UPDATE runners SET last_heartbeat = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("recording heartbeat for runner %s: %w", id, err)
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

func (m *RunnerModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, id string, status RunnerStatus) error {
	if err := status.Validate(); err != nil {
		return fmt.Errorf("validating runner status: %w", err)
	}

	result, err := sqlExec.ExecContext(ctx, "UPDATE runners SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("updating status of runner %s: %w", id, err)
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

// FindCompatible returns active runners whose compatibility set contains the
// job type name, ordered by id. Health ordering is applied by the caller.
func (m *RunnerModel) FindCompatible(ctx context.Context, sqlExec db.SQLExecuter, jobTypeName string) ([]Runner, error) {
	runners := []Runner{}
	query := baseRunnerQuery + `
		WHERE r.status = $1
		AND EXISTS (
			SELECT 1 FROM runner_job_type_compatibility c
			WHERE c.runner_id = r.id AND c.job_type_name = $2
		)
		ORDER BY r.id
	`

	err := sqlExec.SelectContext(ctx, &runners, query, ActiveRunnerStatus, jobTypeName)
	if err != nil {
		return nil, fmt.Errorf("querying runners compatible with %s: %w", jobTypeName, err)
	}

	return runners, nil
}
