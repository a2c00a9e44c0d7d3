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

type JobTypesHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
}

// GetJobTypes lists job types. Customers only see enabled ones.
func (h JobTypesHandler) GetJobTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var jobTypes []data.JobType
	var err error
	if _, isCustomer := middleware.CustomerFromContext(ctx); isCustomer {
		jobTypes, err = h.Models.JobTypes.GetAllEnabled(ctx, h.DBConnectionPool)
	} else {
		jobTypes, err = h.Models.JobTypes.GetAll(ctx, h.DBConnectionPool)
	}
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve job types", err, nil).Render(w)
		return
	}

	httpjson.Render(w, jobTypes, httpjson.JSON)
}

func (h JobTypesHandler) GetJobType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobType, err := h.Models.JobTypes.Get(ctx, h.DBConnectionPool, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve job type", err, nil).Render(w)
		return
	}

	httpjson.Render(w, jobType, httpjson.JSON)
}

type JobTypeRequest struct {
	Name              string  `json:"name"`
	Description       *string `json:"description,omitempty"`
	ProcessorType     string  `json:"processor_type"`
	ProcessingLogicID string  `json:"processing_logic_id"`
	StandardCostCents int     `json:"standard_cost_cents"`
	Enabled           *bool   `json:"enabled,omitempty"`
}

// PostJobType registers a new job type.
func (h JobTypesHandler) PostJobType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req JobTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	processorType, err := data.ToProcessorType(req.ProcessorType)
	if err != nil {
		httperror.BadRequest("Request invalid", err, map[string]interface{}{"processor_type": "invalid processor type"}).Render(w)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	insert := data.JobTypeInsert{
		Name:              req.Name,
		Description:       req.Description,
		ProcessorType:     processorType,
		ProcessingLogicID: req.ProcessingLogicID,
		StandardCostCents: req.StandardCostCents,
		Enabled:           enabled,
	}

	jobType, err := h.Models.JobTypes.Insert(ctx, h.DBConnectionPool, insert)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordAlreadyExists):
			httperror.Conflict("A job type with this name already exists.", err, nil).Render(w)
		case errors.Is(err, data.ErrMissingInput):
			httperror.BadRequest("Request invalid", err, nil).Render(w)
		default:
			httperror.BadRequest("", err, nil).Render(w)
		}
		return
	}

	httpjson.RenderStatus(w, http.StatusCreated, jobType, httpjson.JSON)
}

type PatchJobTypeEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// PatchJobTypeEnabled toggles a job type on or off for new submissions.
func (h JobTypesHandler) PatchJobTypeEnabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PatchJobTypeEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}
	if req.Enabled == nil {
		httperror.BadRequest("Request invalid", nil, map[string]interface{}{"enabled": "enabled is required"}).Render(w)
		return
	}

	jobTypeID := chi.URLParam(r, "id")
	if err := h.Models.JobTypes.SetEnabled(ctx, h.DBConnectionPool, jobTypeID, *req.Enabled); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot update job type", err, nil).Render(w)
		return
	}

	jobType, err := h.Models.JobTypes.Get(ctx, h.DBConnectionPool, jobTypeID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve job type", err, nil).Render(w)
		return
	}

	httpjson.Render(w, jobType, httpjson.JSON)
}
