package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/utils"
)

// FailureChargeRate is the share of the estimated cost billed when a job
// fails.
const FailureChargeRate = 0.25

// PriorityFactor returns the cost multiplier for a priority level.
func PriorityFactor(priority data.JobPriority) float64 {
	switch priority {
	case data.HighJobPriority:
		return 1.5
	case data.CriticalJobPriority:
		return 2.0
	default:
		return 1.0
	}
}

// RoundHalfUpCents multiplies cents by factor and rounds half-up to the
// nearest cent.
func RoundHalfUpCents(cents int, factor float64) int {
	return int(math.Floor(float64(cents)*factor + 0.5))
}

// BillingService prices jobs and moves the money. It is stateless over the
// wallet and job repositories.
type BillingService struct {
	models           *data.Models
	dbConnectionPool db.DBConnectionPool
}

func NewBillingService(models *data.Models, dbConnectionPool db.DBConnectionPool) *BillingService {
	return &BillingService{
		models:           models,
		dbConnectionPool: dbConnectionPool,
	}
}

// CalculateCost prices a job type at a priority: standard cost times the
// priority factor, rounded half-up.
func (s *BillingService) CalculateCost(jobType *data.JobType, priority data.JobPriority) int {
	return RoundHalfUpCents(jobType.StandardCostCents, PriorityFactor(priority))
}

// CalculateJobCost loads the job and prices it at its own priority.
func (s *BillingService) CalculateJobCost(ctx context.Context, jobID string) (int, error) {
	job, err := s.models.Jobs.Get(ctx, s.dbConnectionPool, jobID)
	if err != nil {
		return 0, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	jobType, err := s.models.JobTypes.Get(ctx, s.dbConnectionPool, job.JobTypeID)
	if err != nil {
		return 0, fmt.Errorf("loading job type %s: %w", job.JobTypeID, err)
	}

	return s.CalculateCost(jobType, job.Priority), nil
}

// ReserveFundsForJob places a hold for the job's estimated cost on the
// customer wallet. Fails the submission when the funds are not there.
func (s *BillingService) ReserveFundsForJob(ctx context.Context, jobID string) error {
	job, err := s.models.Jobs.Get(ctx, s.dbConnectionPool, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	return s.reserveForJobInTx(ctx, s.dbConnectionPool, job)
}

// reserveForJob writes the reservation through the given executer so that the
// submission path can bundle it with the job insert.
func (s *BillingService) reserveForJobInTx(ctx context.Context, sqlExec db.SQLExecuter, job *data.Job) error {
	wallet, err := s.models.Wallets.GetByCustomerID(ctx, sqlExec, job.CustomerID)
	if err != nil {
		return fmt.Errorf("loading wallet for customer %s: %w", job.CustomerID, err)
	}

	description := utils.StringPtr(fmt.Sprintf("funds reserved for job %s", job.ID))
	_, err = s.models.Wallets.UpdateBalance(ctx, sqlExec, wallet.ID, -job.EstimatedCostCents, data.ReservedTransactionType, description, &job.ID)
	if err != nil {
		if errors.Is(err, data.ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("reserving %d cents on wallet %s: %w", job.EstimatedCostCents, wallet.ID, err)
	}

	return nil
}

// ReleaseReservedFunds undoes the reservation without charging, for
// cancellation and error paths.
func (s *BillingService) ReleaseReservedFunds(ctx context.Context, jobID string) error {
	job, err := s.models.Jobs.Get(ctx, s.dbConnectionPool, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	return db.RunInTransaction(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) error {
		return s.releaseForJobInTx(ctx, dbTx, job)
	})
}

// releaseForJobInTx writes the release through the given transaction so that
// cancellation can bundle it with the status flip.
func (s *BillingService) releaseForJobInTx(ctx context.Context, dbTx db.DBTransaction, job *data.Job) error {
	wallet, err := s.models.Wallets.GetByCustomerIDForUpdate(ctx, dbTx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("loading wallet for customer %s: %w", job.CustomerID, err)
	}

	description := utils.StringPtr(fmt.Sprintf("reservation released for job %s", job.ID))
	_, err = s.models.Wallets.UpdateBalance(ctx, dbTx, wallet.ID, job.EstimatedCostCents, data.ReleasedTransactionType, description, &job.ID)
	if err != nil {
		return fmt.Errorf("releasing %d cents on wallet %s: %w", job.EstimatedCostCents, wallet.ID, err)
	}

	return nil
}

// ProcessJobBilling settles a finished job. On success the actual cost is the
// priced cost at the job's priority; on failure it is FailureChargeRate of
// the estimate. The reservation release and the debit collapse into one
// balance update, with both ledger rows written in the same transaction, so
// the net effect is balance - (actual - reserved).
func (s *BillingService) ProcessJobBilling(ctx context.Context, jobID string, succeeded bool) (int, error) {
	job, err := s.models.Jobs.Get(ctx, s.dbConnectionPool, jobID)
	if err != nil {
		return 0, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	return db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (int, error) {
		return s.settleJobInTx(ctx, dbTx, job, succeeded)
	})
}

// settleJobInTx settles the job through the given transaction and returns the
// actual cost. Completion runs it in the same transaction as the terminal
// status write, so a settlement failure rolls the whole completion back.
func (s *BillingService) settleJobInTx(ctx context.Context, dbTx db.DBTransaction, job *data.Job, succeeded bool) (int, error) {
	jobType, err := s.models.JobTypes.Get(ctx, dbTx, job.JobTypeID)
	if err != nil {
		return 0, fmt.Errorf("loading job type %s: %w", job.JobTypeID, err)
	}

	var actualCostCents int
	if succeeded {
		actualCostCents = s.CalculateCost(jobType, job.Priority)
	} else {
		actualCostCents = RoundHalfUpCents(job.EstimatedCostCents, FailureChargeRate)
	}

	wallet, err := s.models.Wallets.GetByCustomerIDForUpdate(ctx, dbTx, job.CustomerID)
	if err != nil {
		return 0, fmt.Errorf("loading wallet for customer %s: %w", job.CustomerID, err)
	}

	// The collapsed update can still fail when actual > reserved and the
	// wallet has no residual funds to cover the difference.
	netCents := job.EstimatedCostCents - actualCostCents
	_, err = s.models.Wallets.AdjustBalance(ctx, dbTx, wallet.ID, netCents)
	if err != nil {
		if errors.Is(err, data.ErrInsufficientFunds) {
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("settling wallet %s for job %s: %w", wallet.ID, job.ID, err)
	}

	releaseDescription := utils.StringPtr(fmt.Sprintf("reservation released for job %s", job.ID))
	_, err = s.models.WalletTransactions.Insert(ctx, dbTx, data.WalletTransactionInsert{
		WalletID:        wallet.ID,
		CustomerID:      wallet.CustomerID,
		AmountCents:     job.EstimatedCostCents,
		TransactionType: data.ReleasedTransactionType,
		Description:     releaseDescription,
		JobID:           &job.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("recording release for job %s: %w", job.ID, err)
	}

	debitDescription := utils.StringPtr(fmt.Sprintf("charge for job %s", job.ID))
	_, err = s.models.WalletTransactions.Insert(ctx, dbTx, data.WalletTransactionInsert{
		WalletID:        wallet.ID,
		CustomerID:      wallet.CustomerID,
		AmountCents:     -actualCostCents,
		TransactionType: data.JobDebitTransactionType,
		Description:     debitDescription,
		JobID:           &job.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("recording debit for job %s: %w", job.ID, err)
	}

	if err = s.models.Jobs.UpdateCost(ctx, dbTx, job.ID, actualCostCents); err != nil {
		return 0, fmt.Errorf("updating cost for job %s: %w", job.ID, err)
	}

	return actualCostCents, nil
}
