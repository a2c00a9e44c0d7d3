package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/innosystem/dispatch-platform-backend/db"
)

type Project struct {
	ID          string    `json:"id" db:"id"`
	CustomerID  string    `json:"customer_id" db:"customer_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type ProjectInsert struct {
	CustomerID  string  `db:"customer_id"`
	Name        string  `db:"name"`
	Description *string `db:"description"`
}

func (p *ProjectInsert) Validate() error {
	if strings.TrimSpace(p.CustomerID) == "" {
		return fmt.Errorf("customer_id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

type ProjectModel struct {
	dbConnectionPool db.DBConnectionPool
}

func (m *ProjectModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Project, error) {
	var project Project
	query := "SELECT * FROM projects WHERE id = $1"

	err := sqlExec.GetContext(ctx, &project, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying project ID %s: %w", id, err)
	}

	return &project, nil
}

func (m *ProjectModel) GetByCustomerID(ctx context.Context, sqlExec db.SQLExecuter, customerID string) ([]Project, error) {
	projects := []Project{}
	query := "SELECT * FROM projects WHERE customer_id = $1 ORDER BY created_at"

	err := sqlExec.SelectContext(ctx, &projects, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("querying projects for customer %s: %w", customerID, err)
	}

	return projects, nil
}

func (m *ProjectModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter) ([]Project, error) {
	projects := []Project{}
	query := "SELECT * FROM projects ORDER BY created_at"

	err := sqlExec.SelectContext(ctx, &projects, query)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}

	return projects, nil
}

func (m *ProjectModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert ProjectInsert) (*Project, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating project insert: %w", err)
	}

	var project Project
	query := `
		INSERT INTO projects (customer_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING *
	`

	err := sqlExec.GetContext(ctx, &project, query, insert.CustomerID, insert.Name, insert.Description)
	if err != nil {
		return nil, fmt.Errorf("inserting project: %w", err)
	}

	return &project, nil
}
