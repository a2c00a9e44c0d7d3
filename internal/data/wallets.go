package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/innosystem/dispatch-platform-backend/db"
)

type Wallet struct {
	ID           string    `json:"id" db:"id"`
	CustomerID   string    `json:"customer_id" db:"customer_id"`
	BalanceCents int       `json:"balance_cents" db:"balance_cents"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type WalletModel struct {
	dbConnectionPool db.DBConnectionPool
}

func (m *WalletModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Wallet, error) {
	var wallet Wallet
	query := "SELECT * FROM wallets WHERE id = $1"

	err := sqlExec.GetContext(ctx, &wallet, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying wallet ID %s: %w", id, err)
	}

	return &wallet, nil
}

func (m *WalletModel) GetByCustomerID(ctx context.Context, sqlExec db.SQLExecuter, customerID string) (*Wallet, error) {
	var wallet Wallet
	query := "SELECT * FROM wallets WHERE customer_id = $1"

	err := sqlExec.GetContext(ctx, &wallet, query, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying wallet for customer %s: %w", customerID, err)
	}

	return &wallet, nil
}

// GetByCustomerIDForUpdate loads the wallet row with a row-level lock. Callers
// must pass a dbTx so concurrent balance mutations on the same wallet
// serialize on the lock.
func (m *WalletModel) GetByCustomerIDForUpdate(ctx context.Context, dbTx db.DBTransaction, customerID string) (*Wallet, error) {
	var wallet Wallet
	query := "SELECT * FROM wallets WHERE customer_id = $1 FOR UPDATE"

	err := dbTx.GetContext(ctx, &wallet, query, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying wallet for customer %s: %w", customerID, err)
	}

	return &wallet, nil
}

// AdjustBalance applies amountCents to the wallet balance. The guard on the
// UPDATE keeps the balance from ever going negative; a guard miss on an
// existing wallet means the funds were not there.
func (m *WalletModel) AdjustBalance(ctx context.Context, sqlExec db.SQLExecuter, walletID string, amountCents int) (*Wallet, error) {
	var wallet Wallet
	query := `
		UPDATE wallets
		SET balance_cents = balance_cents + $1
		WHERE id = $2 AND balance_cents + $1 >= 0
		RETURNING *
	`

	err := sqlExec.GetContext(ctx, &wallet, query, amountCents, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing wallet from a guard miss.
			var exists bool
			existsErr := sqlExec.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM wallets WHERE id = $1)", walletID)
			if existsErr != nil {
				return nil, fmt.Errorf("checking wallet %s existence: %w", walletID, existsErr)
			}
			if !exists {
				return nil, ErrRecordNotFound
			}
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("updating balance of wallet %s: %w", walletID, err)
	}

	return &wallet, nil
}

// UpdateBalance applies amountCents to the balance and writes the matching
// ledger row through the same executer, so both commit or neither does.
func (m *WalletModel) UpdateBalance(ctx context.Context, sqlExec db.SQLExecuter, walletID string, amountCents int, txType TransactionType, description *string, jobID *string) (*Wallet, error) {
	wallet, err := m.AdjustBalance(ctx, sqlExec, walletID, amountCents)
	if err != nil {
		return nil, err
	}

	_, err = insertWalletTransaction(ctx, sqlExec, WalletTransactionInsert{
		WalletID:        wallet.ID,
		CustomerID:      wallet.CustomerID,
		AmountCents:     amountCents,
		TransactionType: txType,
		Description:     description,
		JobID:           jobID,
	})
	if err != nil {
		return nil, fmt.Errorf("recording %s transaction for wallet %s: %w", txType, wallet.ID, err)
	}

	return wallet, nil
}
