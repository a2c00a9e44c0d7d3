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
	"github.com/innosystem/dispatch-platform-backend/internal/serve/middleware"
)

type CustomersHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
}

// GetCustomers lists customers. Resellers only see the customers they onboarded.
func (h CustomersHandler) GetCustomers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var customers []data.Customer
	var err error
	if reseller, ok := middleware.ResellerFromContext(ctx); ok {
		customers, err = h.Models.Customers.GetByResellerID(ctx, h.DBConnectionPool, reseller.ID)
	} else {
		customers, err = h.Models.Customers.GetAll(ctx, h.DBConnectionPool)
	}
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve customers", err, nil).Render(w)
		return
	}

	httpjson.Render(w, customers, httpjson.JSON)
}

func (h CustomersHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, err := h.Models.Customers.Get(ctx, h.DBConnectionPool, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve customer", err, nil).Render(w)
		return
	}

	if reseller, ok := middleware.ResellerFromContext(ctx); ok {
		if customer.ResellerID == nil || *customer.ResellerID != reseller.ID {
			httperror.NotFound("", nil, nil).Render(w)
			return
		}
	}

	httpjson.Render(w, customer, httpjson.JSON)
}

type CustomerRequest struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	APIKey *string `json:"api_key,omitempty"`
}

// PostCustomer onboards a customer and its wallet. When a reseller is
// authenticated the customer is attributed to it.
func (h CustomersHandler) PostCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	insert := data.CustomerInsert{
		Name:   req.Name,
		Email:  req.Email,
		APIKey: req.APIKey,
	}
	if reseller, ok := middleware.ResellerFromContext(ctx); ok {
		insert.ResellerID = &reseller.ID
	}

	customer, err := h.Models.Customers.Insert(ctx, insert)
	if err != nil {
		if errors.Is(err, data.ErrRecordAlreadyExists) {
			httperror.Conflict("A customer with this api key already exists.", err, nil).Render(w)
			return
		}
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	httpjson.RenderStatus(w, http.StatusCreated, customer, httpjson.JSON)
}
