package data

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/db/dbtest"
)

func Test_WalletModel_AdjustBalance(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)
	FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 500)

	t.Run("applies positive and negative amounts", func(t *testing.T) {
		updated, err := models.Wallets.AdjustBalance(ctx, dbConnectionPool, wallet.ID, 250)
		require.NoError(t, err)
		assert.Equal(t, 750, updated.BalanceCents)

		updated, err = models.Wallets.AdjustBalance(ctx, dbConnectionPool, wallet.ID, -750)
		require.NoError(t, err)
		assert.Equal(t, 0, updated.BalanceCents)

		FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 500)
	})

	t.Run("guard rejects a debit past zero", func(t *testing.T) {
		_, err := models.Wallets.AdjustBalance(ctx, dbConnectionPool, wallet.ID, -501)
		assert.True(t, errors.Is(err, ErrInsufficientFunds))

		// The failed debit must leave the balance untouched.
		current, err := models.Wallets.Get(ctx, dbConnectionPool, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, 500, current.BalanceCents)
	})

	t.Run("missing wallet returns ErrRecordNotFound", func(t *testing.T) {
		_, err := models.Wallets.AdjustBalance(ctx, dbConnectionPool, "daaa515e-5b27-44b9-b3ce-f02b77b1e863", -10)
		assert.True(t, errors.Is(err, ErrRecordNotFound))
	})
}

func Test_WalletModel_UpdateBalance(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)

	description := "monthly top-up"
	updated, err := models.Wallets.UpdateBalance(ctx, dbConnectionPool, wallet.ID, 1000, DepositTransactionType, &description, nil)
	require.NoError(t, err)
	assert.Equal(t, 1000, updated.BalanceCents)

	transactions, err := models.WalletTransactions.GetByWalletID(ctx, dbConnectionPool, wallet.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, 1000, transactions[0].AmountCents)
	assert.Equal(t, DepositTransactionType, transactions[0].TransactionType)
	require.NotNil(t, transactions[0].Description)
	assert.Equal(t, description, *transactions[0].Description)

	// The ledger total always matches the balance.
	sum, err := models.WalletTransactions.SumAmountsByWalletID(ctx, dbConnectionPool, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.BalanceCents, sum)

	t.Run("a guard miss writes no ledger row", func(t *testing.T) {
		_, err := models.Wallets.UpdateBalance(ctx, dbConnectionPool, wallet.ID, -2000, WithdrawalTransactionType, nil, nil)
		assert.True(t, errors.Is(err, ErrInsufficientFunds))

		count, err := models.WalletTransactions.CountByWalletID(ctx, dbConnectionPool, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func Test_WalletModel_GetByCustomerID(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()
	models, err := NewModels(dbConnectionPool)
	require.NoError(t, err)

	customer := CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)

	wallet, err := models.Wallets.GetByCustomerID(ctx, dbConnectionPool, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, wallet.CustomerID)
	assert.Equal(t, 0, wallet.BalanceCents)

	_, err = models.Wallets.GetByCustomerID(ctx, dbConnectionPool, "daaa515e-5b27-44b9-b3ce-f02b77b1e863")
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}
