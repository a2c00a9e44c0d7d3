package data

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
)

func CreateCustomerFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, name, email string, resellerID *string) *Customer {
	apiKey := "cust_" + uuid.NewString()

	const query = `
		INSERT INTO customers
			(name, email, api_key, reseller_id)
		VALUES
			($1, $2, $3, $4)
		RETURNING
			*
	`

	customer := &Customer{}
	err := sqlExec.GetContext(ctx, customer, query, name, email, apiKey, resellerID)
	require.NoError(t, err)

	const walletQuery = `
		INSERT INTO wallets
			(customer_id, balance_cents)
		VALUES
			($1, 0)
	`
	_, err = sqlExec.ExecContext(ctx, walletQuery, customer.ID)
	require.NoError(t, err)

	return customer
}

func CreateResellerFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, name string, commissionRate int) *Reseller {
	const query = `
		INSERT INTO resellers
			(name, email, api_key, commission_rate)
		VALUES
			($1, $2, $3, $4)
		RETURNING
			*
	`

	reseller := &Reseller{}
	err := sqlExec.GetContext(ctx, reseller, query, name, name+"@example.com", "rsl_"+uuid.NewString(), commissionRate)
	require.NoError(t, err)

	return reseller
}

func CreateProjectFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, customerID, name string) *Project {
	const query = `
		INSERT INTO projects
			(customer_id, name)
		VALUES
			($1, $2)
		RETURNING
			*
	`

	project := &Project{}
	err := sqlExec.GetContext(ctx, project, query, customerID, name)
	require.NoError(t, err)

	return project
}

func CreateJobTypeFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, name string, processorType ProcessorType, standardCostCents int) *JobType {
	const query = `
		INSERT INTO job_types
			(name, processor_type, processing_logic_id, standard_cost_cents, enabled)
		VALUES
			($1, $2, $3, $4, TRUE)
		RETURNING
			*
	`

	jobType := &JobType{}
	err := sqlExec.GetContext(ctx, jobType, query, name, processorType, "logic_"+name, standardCostCents)
	require.NoError(t, err)

	return jobType
}

func CreateJobFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, customerID, jobTypeID string, status JobStatus, priority JobPriority, estimatedCostCents int) *Job {
	const query = `
		INSERT INTO jobs
			(customer_id, job_type_id, status, priority, input_data, estimated_cost_cents)
		VALUES
			($1, $2, $3, $4, $5, $6)
		RETURNING
			*
	`

	job := &Job{}
	err := sqlExec.GetContext(ctx, job, query, customerID, jobTypeID, status, priority, types.JSONText(`{"message":"hello"}`), estimatedCostCents)
	require.NoError(t, err)

	return job
}

func CreateRunnerFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, name string, compatibleJobTypes ...string) *Runner {
	const query = `
		INSERT INTO runners
			(name)
		VALUES
			($1)
		RETURNING
			id
	`

	var runnerID string
	err := sqlExec.GetContext(ctx, &runnerID, query, name)
	require.NoError(t, err)

	for _, jobTypeName := range compatibleJobTypes {
		_, err = sqlExec.ExecContext(ctx,
			"INSERT INTO runner_job_type_compatibility (runner_id, job_type_name) VALUES ($1, $2)",
			runnerID, jobTypeName)
		require.NoError(t, err)
	}

	runner := &Runner{}
	err = sqlExec.GetContext(ctx, runner, baseRunnerQuery+"WHERE r.id = $1", runnerID)
	require.NoError(t, err)

	return runner
}

// SetRunnerHeartbeatFixture pins last_heartbeat to a known instant.
func SetRunnerHeartbeatFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, runnerID string, at time.Time) {
	_, err := sqlExec.ExecContext(ctx, "UPDATE runners SET last_heartbeat = $1 WHERE id = $2", at, runnerID)
	require.NoError(t, err)
}

// SetJobUpdatedAtFixture ages a job row for stall-sweep tests. The updated_at
// trigger would stamp NOW() on any UPDATE, so it is toggled off around the
// write.
func SetJobUpdatedAtFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, jobID string, at time.Time) {
	_, err := sqlExec.ExecContext(ctx, "ALTER TABLE jobs DISABLE TRIGGER refresh_job_updated_at")
	require.NoError(t, err)
	_, err = sqlExec.ExecContext(ctx, "UPDATE jobs SET updated_at = $1 WHERE id = $2", at, jobID)
	require.NoError(t, err)
	_, err = sqlExec.ExecContext(ctx, "ALTER TABLE jobs ENABLE TRIGGER refresh_job_updated_at")
	require.NoError(t, err)
}

// FundWalletFixture seeds a wallet balance with a matching deposit ledger row.
func FundWalletFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, walletID, customerID string, amountCents int) {
	_, err := sqlExec.ExecContext(ctx, "UPDATE wallets SET balance_cents = balance_cents + $1 WHERE id = $2", amountCents, walletID)
	require.NoError(t, err)

	_, err = sqlExec.ExecContext(ctx,
		"INSERT INTO wallet_transactions (wallet_id, customer_id, amount_cents, transaction_type, description) VALUES ($1, $2, $3, 'deposit', 'fixture deposit')",
		walletID, customerID, amountCents)
	require.NoError(t, err)
}

func GetWalletFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, customerID string) *Wallet {
	wallet := &Wallet{}
	err := sqlExec.GetContext(ctx, wallet, "SELECT * FROM wallets WHERE customer_id = $1", customerID)
	require.NoError(t, err)

	return wallet
}

func DeleteAllJobsFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	_, err := sqlExec.ExecContext(ctx, "DELETE FROM wallet_transactions WHERE job_id IS NOT NULL")
	require.NoError(t, err)
	_, err = sqlExec.ExecContext(ctx, "DELETE FROM jobs")
	require.NoError(t, err)
}

func DeleteAllRunnersFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	_, err := sqlExec.ExecContext(ctx, "DELETE FROM runner_job_type_compatibility")
	require.NoError(t, err)
	_, err = sqlExec.ExecContext(ctx, "DELETE FROM runners")
	require.NoError(t, err)
}

func DeleteAllFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	DeleteAllJobsFixtures(t, ctx, sqlExec)
	DeleteAllRunnersFixtures(t, ctx, sqlExec)

	for _, table := range []string{"wallet_transactions", "wallets", "projects", "job_types", "customers", "resellers"} {
		_, err := sqlExec.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
}
