package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stellar/go/support/render/httpjson"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httperror"
)

type ResellersHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
}

func (h ResellersHandler) GetResellers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resellers, err := h.Models.Resellers.GetAll(ctx, h.DBConnectionPool)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve resellers", err, nil).Render(w)
		return
	}

	httpjson.Render(w, resellers, httpjson.JSON)
}

func (h ResellersHandler) GetReseller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reseller, err := h.Models.Resellers.Get(ctx, h.DBConnectionPool, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve reseller", err, nil).Render(w)
		return
	}

	httpjson.Render(w, reseller, httpjson.JSON)
}

type ResellerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	APIKey         string `json:"api_key"`
	CommissionRate int    `json:"commission_rate"`
}

func (h ResellersHandler) PostReseller(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ResellerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	reseller, err := h.Models.Resellers.Insert(ctx, h.DBConnectionPool, data.ResellerInsert{
		Name:           req.Name,
		Email:          req.Email,
		APIKey:         req.APIKey,
		CommissionRate: req.CommissionRate,
	})
	if err != nil {
		if errors.Is(err, data.ErrRecordAlreadyExists) {
			httperror.Conflict("A reseller with this api key already exists.", err, nil).Render(w)
			return
		}
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	httpjson.RenderStatus(w, http.StatusCreated, reseller, httpjson.JSON)
}

type PatchResellerActiveRequest struct {
	Active *bool `json:"active"`
}

func (h ResellersHandler) PatchResellerActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PatchResellerActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}
	if req.Active == nil {
		httperror.BadRequest("Request invalid", nil, map[string]interface{}{"active": "active is required"}).Render(w)
		return
	}

	resellerID := chi.URLParam(r, "id")
	if err := h.Models.Resellers.SetActive(ctx, h.DBConnectionPool, resellerID, *req.Active); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot update reseller", err, nil).Render(w)
		return
	}

	reseller, err := h.Models.Resellers.Get(ctx, h.DBConnectionPool, resellerID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve reseller", err, nil).Render(w)
		return
	}

	httpjson.Render(w, reseller, httpjson.JSON)
}
