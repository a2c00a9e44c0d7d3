package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/innosystem/dispatch-platform-backend/db"
)

type TransactionType string

const (
	DepositTransactionType      TransactionType = "deposit"
	WithdrawalTransactionType   TransactionType = "withdrawal"
	ReservedTransactionType     TransactionType = "reserved"
	ReleasedTransactionType     TransactionType = "released"
	JobCreditTransactionType    TransactionType = "job_credit"
	JobDebitTransactionType     TransactionType = "job_debit"
	RefundCreditTransactionType TransactionType = "refund_credit"
)

func (tt TransactionType) Validate() error {
	switch TransactionType(strings.ToLower(string(tt))) {
	case DepositTransactionType, WithdrawalTransactionType, ReservedTransactionType,
		ReleasedTransactionType, JobCreditTransactionType, JobDebitTransactionType, RefundCreditTransactionType:
		return nil
	default:
		return fmt.Errorf("invalid transaction type: %s", tt)
	}
}

// WalletTransaction is one row of the append-only ledger.
type WalletTransaction struct {
	ID              string          `json:"id" db:"id"`
	WalletID        string          `json:"wallet_id" db:"wallet_id"`
	CustomerID      string          `json:"customer_id" db:"customer_id"`
	AmountCents     int             `json:"amount_cents" db:"amount_cents"`
	TransactionType TransactionType `json:"transaction_type" db:"transaction_type"`
	Description     *string         `json:"description,omitempty" db:"description"`
	JobID           *string         `json:"job_id,omitempty" db:"job_id"`
	ReferenceID     *string         `json:"reference_id,omitempty" db:"reference_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

type WalletTransactionInsert struct {
	WalletID        string          `db:"wallet_id"`
	CustomerID      string          `db:"customer_id"`
	AmountCents     int             `db:"amount_cents"`
	TransactionType TransactionType `db:"transaction_type"`
	Description     *string         `db:"description"`
	JobID           *string         `db:"job_id"`
	ReferenceID     *string         `db:"reference_id"`
}

type WalletTransactionModel struct {
	dbConnectionPool db.DBConnectionPool
}

func insertWalletTransaction(ctx context.Context, sqlExec db.SQLExecuter, insert WalletTransactionInsert) (*WalletTransaction, error) {
	if err := insert.TransactionType.Validate(); err != nil {
		return nil, fmt.Errorf("validating transaction type: %w", err)
	}

	var walletTx WalletTransaction
	query := `
		INSERT INTO wallet_transactions (wallet_id, customer_id, amount_cents, transaction_type, description, job_id, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`

	err := sqlExec.GetContext(ctx, &walletTx, query,
		insert.WalletID, insert.CustomerID, insert.AmountCents, insert.TransactionType,
		insert.Description, insert.JobID, insert.ReferenceID)
	if err != nil {
		return nil, fmt.Errorf("inserting wallet transaction: %w", err)
	}

	return &walletTx, nil
}

// Insert writes a ledger row without touching the balance. Billing uses it to
// pair a released and a job_debit row around a single collapsed balance
// update.
func (m *WalletTransactionModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert WalletTransactionInsert) (*WalletTransaction, error) {
	return insertWalletTransaction(ctx, sqlExec, insert)
}

func (m *WalletTransactionModel) GetByWalletID(ctx context.Context, sqlExec db.SQLExecuter, walletID string, limit, offset int) ([]WalletTransaction, error) {
	transactions := []WalletTransaction{}
	query := `
		SELECT * FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	err := sqlExec.SelectContext(ctx, &transactions, query, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for wallet %s: %w", walletID, err)
	}

	return transactions, nil
}

func (m *WalletTransactionModel) CountByWalletID(ctx context.Context, sqlExec db.SQLExecuter, walletID string) (int, error) {
	var count int
	err := sqlExec.GetContext(ctx, &count, "SELECT COUNT(*) FROM wallet_transactions WHERE wallet_id = $1", walletID)
	if err != nil {
		return 0, fmt.Errorf("counting transactions for wallet %s: %w", walletID, err)
	}
	return count, nil
}

func (m *WalletTransactionModel) GetByJobID(ctx context.Context, sqlExec db.SQLExecuter, jobID string) ([]WalletTransaction, error) {
	transactions := []WalletTransaction{}
	query := `
		SELECT * FROM wallet_transactions
		WHERE job_id = $1
		ORDER BY created_at
	`

	err := sqlExec.SelectContext(ctx, &transactions, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for job %s: %w", jobID, err)
	}

	return transactions, nil
}

// SumAmountsByWalletID returns the ledger total for a wallet. It must always
// equal the wallet's balance_cents.
func (m *WalletTransactionModel) SumAmountsByWalletID(ctx context.Context, sqlExec db.SQLExecuter, walletID string) (int, error) {
	var sum int
	err := sqlExec.GetContext(ctx, &sum, "SELECT COALESCE(SUM(amount_cents), 0) FROM wallet_transactions WHERE wallet_id = $1", walletID)
	if err != nil {
		return 0, fmt.Errorf("summing transactions for wallet %s: %w", walletID, err)
	}
	return sum, nil
}
