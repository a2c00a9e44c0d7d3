package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stellar/go/support/render/httpjson"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httperror"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/middleware"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

type WalletsHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
	WalletService    *services.WalletService
}

// GetWallet returns the authenticated customer's wallet.
func (h WalletsHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, ok := middleware.CustomerFromContext(ctx)
	if !ok {
		httperror.Unauthorized("", nil, nil).Render(w)
		return
	}

	wallet, err := h.WalletService.GetWalletByCustomerID(ctx, customer.ID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve wallet", err, nil).Render(w)
		return
	}

	httpjson.Render(w, wallet, httpjson.JSON)
}

type WalletTransactionsResponse struct {
	Total        int                      `json:"total"`
	Transactions []data.WalletTransaction `json:"transactions"`
}

// GetTransactions pages through the authenticated customer's ledger, newest
// first.
func (h WalletsHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, ok := middleware.CustomerFromContext(ctx)
	if !ok {
		httperror.Unauthorized("", nil, nil).Render(w)
		return
	}

	limit := parseIntQueryParam(r, "limit", 20)
	offset := parseIntQueryParam(r, "offset", 0)
	if limit <= 0 || limit > 100 || offset < 0 {
		httperror.BadRequest("Request invalid", nil, map[string]interface{}{"limit": "limit must be between 1 and 100 and offset cannot be negative"}).Render(w)
		return
	}

	wallet, err := h.WalletService.GetWalletByCustomerID(ctx, customer.ID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve wallet", err, nil).Render(w)
		return
	}

	page, err := h.WalletService.GetTransactions(ctx, wallet.ID, limit, offset)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve wallet transactions", err, nil).Render(w)
		return
	}

	httpjson.Render(w, WalletTransactionsResponse{
		Total:        page.TotalTransactions,
		Transactions: page.Transactions,
	}, httpjson.JSON)
}

type WalletAmountRequest struct {
	AmountCents int     `json:"amount_cents"`
	Description *string `json:"description,omitempty"`
}

// PostDeposit credits a wallet. Admin only.
func (h WalletsHandler) PostDeposit(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, chi.URLParam(r, "id"), h.WalletService.Deposit)
}

// PostWithdraw debits a wallet. Admin only.
func (h WalletsHandler) PostWithdraw(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, chi.URLParam(r, "id"), h.WalletService.Withdraw)
}

// PostOwnDeposit credits the authenticated customer's own wallet.
func (h WalletsHandler) PostOwnDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, ok := middleware.CustomerFromContext(ctx)
	if !ok {
		httperror.Unauthorized("", nil, nil).Render(w)
		return
	}

	wallet, err := h.WalletService.GetWalletByCustomerID(ctx, customer.ID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve wallet", err, nil).Render(w)
		return
	}

	h.applyAmount(w, r, wallet.ID, h.WalletService.Deposit)
}

type walletAmountFunc func(ctx context.Context, walletID string, amountCents int, description *string, jobID *string) (*data.Wallet, error)

func (h WalletsHandler) applyAmount(w http.ResponseWriter, r *http.Request, walletID string, apply walletAmountFunc) {
	ctx := r.Context()

	var req WalletAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}
	if req.AmountCents <= 0 {
		httperror.BadRequest("Request invalid", nil, map[string]interface{}{"amount_cents": "amount_cents must be positive"}).Render(w)
		return
	}

	wallet, err := apply(ctx, walletID, req.AmountCents, req.Description, nil)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			httperror.NotFound("", err, nil).Render(w)
		case errors.Is(err, services.ErrInsufficientFunds):
			httperror.PaymentRequired("", err, nil).Render(w)
		default:
			httperror.InternalError(ctx, "Cannot update wallet balance", err, nil).Render(w)
		}
		return
	}

	httpjson.Render(w, wallet, httpjson.JSON)
}

func parseIntQueryParam(r *http.Request, param string, defaultValue int) int {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return intValue
}
