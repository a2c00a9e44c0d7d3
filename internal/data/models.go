package data

import (
	"errors"

	"github.com/innosystem/dispatch-platform-backend/db"
)

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrRecordAlreadyExists     = errors.New("record already exists")
	ErrMismatchNumRowsAffected = errors.New("mismatch number of rows affected")
	ErrMissingInput            = errors.New("missing input")
	ErrInsufficientFunds       = errors.New("insufficient funds")
)

type Models struct {
	Customers          *CustomerModel
	Resellers          *ResellerModel
	Projects           *ProjectModel
	JobTypes           *JobTypeModel
	Jobs               *JobModel
	Runners            *RunnerModel
	Wallets            *WalletModel
	WalletTransactions *WalletTransactionModel
	DBConnectionPool   db.DBConnectionPool
}

func NewModels(dbConnectionPool db.DBConnectionPool) (*Models, error) {
	if dbConnectionPool == nil {
		return nil, errors.New("dbConnectionPool is required for NewModels")
	}
	return &Models{
		Customers:          &CustomerModel{dbConnectionPool: dbConnectionPool},
		Resellers:          &ResellerModel{dbConnectionPool: dbConnectionPool},
		Projects:           &ProjectModel{dbConnectionPool: dbConnectionPool},
		JobTypes:           &JobTypeModel{dbConnectionPool: dbConnectionPool},
		Jobs:               &JobModel{dbConnectionPool: dbConnectionPool},
		Runners:            &RunnerModel{dbConnectionPool: dbConnectionPool},
		Wallets:            &WalletModel{dbConnectionPool: dbConnectionPool},
		WalletTransactions: &WalletTransactionModel{dbConnectionPool: dbConnectionPool},
		DBConnectionPool:   dbConnectionPool,
	}, nil
}
