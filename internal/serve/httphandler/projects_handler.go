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

type ProjectsHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
}

// GetProjects lists the authenticated customer's projects.
func (h ProjectsHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, ok := middleware.CustomerFromContext(ctx)
	if !ok {
		httperror.Unauthorized("", nil, nil).Render(w)
		return
	}

	projects, err := h.Models.Projects.GetByCustomerID(ctx, h.DBConnectionPool, customer.ID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve projects", err, nil).Render(w)
		return
	}

	httpjson.Render(w, projects, httpjson.JSON)
}

func (h ProjectsHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	project, err := h.Models.Projects.Get(ctx, h.DBConnectionPool, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve project", err, nil).Render(w)
		return
	}

	if customer, ok := middleware.CustomerFromContext(ctx); ok && project.CustomerID != customer.ID {
		httperror.NotFound("", nil, nil).Render(w)
		return
	}

	httpjson.Render(w, project, httpjson.JSON)
}

type ProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// PostProject creates a project under the authenticated customer.
func (h ProjectsHandler) PostProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, ok := middleware.CustomerFromContext(ctx)
	if !ok {
		httperror.Unauthorized("", nil, nil).Render(w)
		return
	}

	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	project, err := h.Models.Projects.Insert(ctx, h.DBConnectionPool, data.ProjectInsert{
		CustomerID:  customer.ID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	httpjson.RenderStatus(w, http.StatusCreated, project, httpjson.JSON)
}
