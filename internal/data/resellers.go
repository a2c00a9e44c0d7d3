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

type Reseller struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	APIKey         string    `json:"api_key" db:"api_key"`
	Active         bool      `json:"active" db:"active"`
	CommissionRate int       `json:"commission_rate" db:"commission_rate"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type ResellerInsert struct {
	Name           string `db:"name"`
	Email          string `db:"email"`
	APIKey         string `db:"api_key"`
	CommissionRate int    `db:"commission_rate"`
}

func (r *ResellerInsert) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if strings.TrimSpace(r.APIKey) == "" {
		return fmt.Errorf("api_key is required")
	}
	// Commission is in basis points.
	if r.CommissionRate < 0 || r.CommissionRate > 10000 {
		return fmt.Errorf("commission_rate must be between 0 and 10000")
	}
	return nil
}

type ResellerModel struct {
	dbConnectionPool db.DBConnectionPool
}

const baseResellerQuery = `
	SELECT
		r.id,
		r.name,
		r.email,
		r.api_key,
		r.active,
		r.commission_rate,
		r.created_at,
		r.updated_at
	FROM
		resellers r
`

func (m *ResellerModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Reseller, error) {
	var reseller Reseller
	query := baseResellerQuery + "WHERE r.id = $1"

	err := sqlExec.GetContext(ctx, &reseller, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying reseller ID %s: %w", id, err)
	}

	return &reseller, nil
}

func (m *ResellerModel) GetByAPIKey(ctx context.Context, sqlExec db.SQLExecuter, apiKey string) (*Reseller, error) {
	var reseller Reseller
	query := baseResellerQuery + "WHERE r.api_key = $1 AND r.active = TRUE"

	err := sqlExec.GetContext(ctx, &reseller, query, apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying reseller by api key: %w", err)
	}

	return &reseller, nil
}

func (m *ResellerModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter) ([]Reseller, error) {
	resellers := []Reseller{}
	query := baseResellerQuery + "ORDER BY r.created_at"

	err := sqlExec.SelectContext(ctx, &resellers, query)
	if err != nil {
		return nil, fmt.Errorf("querying resellers: %w", err)
	}

	return resellers, nil
}

func (m *ResellerModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert ResellerInsert) (*Reseller, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating reseller insert: %w", err)
	}

	var reseller Reseller
	query := `
		INSERT INTO resellers (name, email, api_key, commission_rate)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, api_key, active, commission_rate, created_at, updated_at
	`

	err := sqlExec.GetContext(ctx, &reseller, query, insert.Name, insert.Email, insert.APIKey, insert.CommissionRate)
	if err != nil {
		var pqError *pq.Error
		if errors.As(err, &pqError) && pqError.Code == "23505" {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting reseller: %w", err)
	}

	return &reseller, nil
}

func (m *ResellerModel) SetActive(ctx context.Context, sqlExec db.SQLExecuter, id string, active bool) error {
	result, err := sqlExec.ExecContext(ctx, "UPDATE resellers SET active = $1 WHERE id = $2", active, id)
	if err != nil {
		return fmt.Errorf("updating reseller active flag: %w", err)
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
