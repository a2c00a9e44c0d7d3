package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

// WalletService performs the six ledger mutations. Every operation runs the
// balance change and the ledger insertion in one database transaction.
type WalletService struct {
	models           *data.Models
	dbConnectionPool db.DBConnectionPool
}

func NewWalletService(models *data.Models, dbConnectionPool db.DBConnectionPool) *WalletService {
	return &WalletService{
		models:           models,
		dbConnectionPool: dbConnectionPool,
	}
}

func (s *WalletService) Deposit(ctx context.Context, walletID string, amountCents int, description *string, jobID *string) (*data.Wallet, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %d", amountCents)
	}
	return s.applyInTx(ctx, walletID, amountCents, data.DepositTransactionType, description, jobID)
}

func (s *WalletService) Withdraw(ctx context.Context, walletID string, amountCents int, description *string, jobID *string) (*data.Wallet, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %d", amountCents)
	}
	return s.applyInTx(ctx, walletID, -amountCents, data.WithdrawalTransactionType, description, jobID)
}

// Reserve debits the balance immediately and writes a reserved row. The
// matching Release restores it later.
func (s *WalletService) Reserve(ctx context.Context, walletID string, amountCents int, description *string, jobID *string) (*data.Wallet, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("reserve amount must be positive, got %d", amountCents)
	}
	return s.applyInTx(ctx, walletID, -amountCents, data.ReservedTransactionType, description, jobID)
}

func (s *WalletService) Release(ctx context.Context, walletID string, amountCents int, description *string, jobID *string) (*data.Wallet, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("release amount must be positive, got %d", amountCents)
	}
	return s.applyInTx(ctx, walletID, amountCents, data.ReleasedTransactionType, description, jobID)
}

// JobDebit records the final charge for a job. Paired with a prior Release.
func (s *WalletService) JobDebit(ctx context.Context, walletID string, amountCents int, description *string, jobID *string) (*data.Wallet, error) {
	if amountCents < 0 {
		return nil, fmt.Errorf("job debit amount cannot be negative, got %d", amountCents)
	}
	return s.applyInTx(ctx, walletID, -amountCents, data.JobDebitTransactionType, description, jobID)
}

func (s *WalletService) RefundCredit(ctx context.Context, walletID string, amountCents int, description *string, jobID *string) (*data.Wallet, error) {
	if amountCents < 0 {
		return nil, fmt.Errorf("refund amount cannot be negative, got %d", amountCents)
	}
	return s.applyInTx(ctx, walletID, amountCents, data.RefundCreditTransactionType, description, jobID)
}

func (s *WalletService) applyInTx(ctx context.Context, walletID string, amountCents int, txType data.TransactionType, description *string, jobID *string) (*data.Wallet, error) {
	wallet, err := db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*data.Wallet, error) {
		return s.models.Wallets.UpdateBalance(ctx, dbTx, walletID, amountCents, txType, description, jobID)
	})
	if err != nil {
		if errors.Is(err, data.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("applying %s of %d cents to wallet %s: %w", txType, amountCents, walletID, err)
	}
	return wallet, nil
}

func (s *WalletService) GetWalletByCustomerID(ctx context.Context, customerID string) (*data.Wallet, error) {
	return s.models.Wallets.GetByCustomerID(ctx, s.dbConnectionPool, customerID)
}

type WalletTransactionsPaginatedResponse struct {
	TotalTransactions int
	Transactions      []data.WalletTransaction
}

func (s *WalletService) GetTransactions(ctx context.Context, walletID string, limit, offset int) (*WalletTransactionsPaginatedResponse, error) {
	return db.RunInTransactionWithResult(ctx, s.dbConnectionPool, nil, func(dbTx db.DBTransaction) (*WalletTransactionsPaginatedResponse, error) {
		total, err := s.models.WalletTransactions.CountByWalletID(ctx, dbTx, walletID)
		if err != nil {
			return nil, fmt.Errorf("error counting wallet transactions: %w", err)
		}

		var transactions []data.WalletTransaction
		if total != 0 {
			transactions, err = s.models.WalletTransactions.GetByWalletID(ctx, dbTx, walletID, limit, offset)
			if err != nil {
				return nil, fmt.Errorf("error querying wallet transactions: %w", err)
			}
		}

		return &WalletTransactionsPaginatedResponse{
			TotalTransactions: total,
			Transactions:      transactions,
		}, nil
	})
}
