package httphandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/db/dbtest"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

func setupWalletsHandler(t *testing.T) (WalletsHandler, db.DBConnectionPool) {
	dbt := dbtest.Open(t)
	t.Cleanup(func() { dbt.Close() })
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { dbConnectionPool.Close() })

	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	handler := WalletsHandler{
		Models:           models,
		DBConnectionPool: dbConnectionPool,
		WalletService:    services.NewWalletService(models, dbConnectionPool),
	}

	return handler, dbConnectionPool
}

func Test_WalletsHandler_GetWallet(t *testing.T) {
	handler, dbConnectionPool := setupWalletsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := data.GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)
	data.FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 500)

	t.Run("returns the authenticated customer's wallet", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.GetWallet).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var gotWallet data.Wallet
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotWallet))
		assert.Equal(t, wallet.ID, gotWallet.ID)
		assert.Equal(t, 500, gotWallet.BalanceCents)
	})

	t.Run("unauthenticated request is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.GetWallet).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func Test_WalletsHandler_GetTransactions(t *testing.T) {
	handler, dbConnectionPool := setupWalletsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := data.GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)
	data.FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 500)
	data.FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 300)

	t.Run("pages through the ledger", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/wallet/transactions?limit=1", nil)
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.GetTransactions).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp WalletTransactionsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)
		assert.Len(t, resp.Transactions, 1)
	})

	t.Run("out-of-range limit is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/wallet/transactions?limit=500", nil)
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.GetTransactions).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_WalletsHandler_PostOwnDeposit(t *testing.T) {
	handler, dbConnectionPool := setupWalletsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)

	t.Run("credits the authenticated customer's wallet", func(t *testing.T) {
		body := `{"amount_cents": 1500, "description": "top-up"}`
		req := httptest.NewRequest(http.MethodPost, "/wallet/deposit", strings.NewReader(body))
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostOwnDeposit).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var gotWallet data.Wallet
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotWallet))
		assert.Equal(t, 1500, gotWallet.BalanceCents)
	})

	t.Run("non-positive amount is 400", func(t *testing.T) {
		body := `{"amount_cents": -5}`
		req := httptest.NewRequest(http.MethodPost, "/wallet/deposit", strings.NewReader(body))
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostOwnDeposit).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unauthenticated request is 401", func(t *testing.T) {
		body := `{"amount_cents": 1000}`
		req := httptest.NewRequest(http.MethodPost, "/wallet/deposit", strings.NewReader(body))
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostOwnDeposit).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func Test_WalletsHandler_PostDeposit_and_PostWithdraw(t *testing.T) {
	handler, dbConnectionPool := setupWalletsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := data.GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)

	router := chi.NewRouter()
	router.Post("/wallets/{id}/deposit", handler.PostDeposit)
	router.Post("/wallets/{id}/withdraw", handler.PostWithdraw)

	t.Run("deposit credits the wallet", func(t *testing.T) {
		body := `{"amount_cents": 1000, "description": "initial top-up"}`
		req := httptest.NewRequest(http.MethodPost, "/wallets/"+wallet.ID+"/deposit", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var gotWallet data.Wallet
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotWallet))
		assert.Equal(t, 1000, gotWallet.BalanceCents)
	})

	t.Run("withdrawal debits the wallet", func(t *testing.T) {
		body := `{"amount_cents": 400}`
		req := httptest.NewRequest(http.MethodPost, "/wallets/"+wallet.ID+"/withdraw", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var gotWallet data.Wallet
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotWallet))
		assert.Equal(t, 600, gotWallet.BalanceCents)
	})

	t.Run("overdraft is 402", func(t *testing.T) {
		body := `{"amount_cents": 10000}`
		req := httptest.NewRequest(http.MethodPost, "/wallets/"+wallet.ID+"/withdraw", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	})

	t.Run("non-positive amount is 400", func(t *testing.T) {
		body := `{"amount_cents": 0}`
		req := httptest.NewRequest(http.MethodPost, "/wallets/"+wallet.ID+"/deposit", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing wallet is 404", func(t *testing.T) {
		body := `{"amount_cents": 100}`
		req := httptest.NewRequest(http.MethodPost, "/wallets/daaa515e-5b27-44b9-b3ce-f02b77b1e863/deposit", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
