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

type Customer struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	APIKey     *string   `json:"api_key,omitempty" db:"api_key"`
	ResellerID *string   `json:"reseller_id,omitempty" db:"reseller_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type CustomerInsert struct {
	Name       string  `db:"name"`
	Email      string  `db:"email"`
	APIKey     *string `db:"api_key"`
	ResellerID *string `db:"reseller_id"`
}

func (c *CustomerInsert) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("email is required")
	}
	return nil
}

type CustomerModel struct {
	dbConnectionPool db.DBConnectionPool
}

const baseCustomerQuery = `
	SELECT
		c.id,
		c.name,
		c.email,
		c.api_key,
		c.reseller_id,
		c.created_at,
		c.updated_at
	FROM
		customers c
`

func (m *CustomerModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Customer, error) {
	var customer Customer
	query := baseCustomerQuery + "WHERE c.id = $1"

	err := sqlExec.GetContext(ctx, &customer, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying customer ID %s: %w", id, err)
	}

	return &customer, nil
}

func (m *CustomerModel) GetByAPIKey(ctx context.Context, sqlExec db.SQLExecuter, apiKey string) (*Customer, error) {
	var customer Customer
	query := baseCustomerQuery + "WHERE c.api_key = $1"

	err := sqlExec.GetContext(ctx, &customer, query, apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying customer by api key: %w", err)
	}

	return &customer, nil
}

func (m *CustomerModel) GetByResellerID(ctx context.Context, sqlExec db.SQLExecuter, resellerID string) ([]Customer, error) {
	customers := []Customer{}
	query := baseCustomerQuery + "WHERE c.reseller_id = $1 ORDER BY c.created_at"

	err := sqlExec.SelectContext(ctx, &customers, query, resellerID)
	if err != nil {
		return nil, fmt.Errorf("querying customers for reseller %s: %w", resellerID, err)
	}

	return customers, nil
}

func (m *CustomerModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter) ([]Customer, error) {
	customers := []Customer{}
	query := baseCustomerQuery + "ORDER BY c.created_at"

	err := sqlExec.SelectContext(ctx, &customers, query)
	if err != nil {
		return nil, fmt.Errorf("querying customers: %w", err)
	}

	return customers, nil
}

// Insert creates the customer and its wallet in the same transaction. Every
// customer owns exactly one wallet from the moment it exists.
func (m *CustomerModel) Insert(ctx context.Context, insert CustomerInsert) (*Customer, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating customer insert: %w", err)
	}

	return db.RunInTransactionWithResult(ctx, m.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*Customer, error) {
		var customer Customer
		query := `
			INSERT INTO customers (name, email, api_key, reseller_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, name, email, api_key, reseller_id, created_at, updated_at
		`

		err := dbTx.GetContext(ctx, &customer, query, insert.Name, insert.Email, insert.APIKey, insert.ResellerID)
		if err != nil {
			var pqError *pq.Error
			if errors.As(err, &pqError) && pqError.Code == "23505" {
				return nil, ErrRecordAlreadyExists
			}
			return nil, fmt.Errorf("inserting customer: %w", err)
		}

		_, err = dbTx.ExecContext(ctx, "INSERT INTO wallets (customer_id, balance_cents) VALUES ($1, 0)", customer.ID)
		if err != nil {
			return nil, fmt.Errorf("creating wallet for customer %s: %w", customer.ID, err)
		}

		return &customer, nil
	})
}
