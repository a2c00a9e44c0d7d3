package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx/types"
	"github.com/stellar/go/support/render/httpjson"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httperror"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httpresponse"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/middleware"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/validators"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

type JobsHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
	DispatchService  *services.JobDispatchService
	BillingService   *services.BillingService
}

// PostJob admits a job on behalf of the authenticated customer.
func (h JobsHandler) PostJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customer, ok := middleware.CustomerFromContext(ctx)
	if !ok {
		httperror.Unauthorized("", nil, nil).Render(w)
		return
	}

	var req validators.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	validator := validators.NewJobValidator()
	priority := validator.ValidateAndGetPriority(&req)
	if validator.HasErrors() {
		httperror.BadRequest("Request invalid", nil, validator.Errors).Render(w)
		return
	}

	job, err := h.DispatchService.SubmitJob(ctx, services.SubmitJobRequest{
		CustomerID: customer.ID,
		JobTypeID:  req.JobTypeID,
		ProjectID:  req.ProjectID,
		Priority:   priority,
		InputData:  types.JSONText(req.InputData),
		RunAt:      req.RunAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientFunds):
			httperror.PaymentRequired("", err, nil).Render(w)
		case errors.Is(err, services.ErrJobTypeDisabled):
			httperror.UnprocessableEntity("The job type is disabled.", err, nil).Render(w)
		case errors.Is(err, data.ErrRecordNotFound):
			httperror.NotFound("Job type not found.", err, nil).Render(w)
		default:
			httperror.InternalError(ctx, "Cannot submit job", err, nil).Render(w)
		}
		return
	}

	httpjson.RenderStatus(w, http.StatusCreated, job, httpjson.JSON)
}

// GetJobs returns a paginated list of jobs. Customers only see their own.
func (h JobsHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	validator := validators.NewJobQueryValidator()
	queryParams := validator.ParseParametersFromRequest(r)
	if validator.HasErrors() {
		httperror.BadRequest("Request invalid", nil, validator.Errors).Render(w)
		return
	}

	if customer, ok := middleware.CustomerFromContext(ctx); ok {
		queryParams.Filters[data.FilterKeyCustomerID] = customer.ID
	}

	resultWithTotal, err := h.DispatchService.GetJobsWithCount(ctx, queryParams)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve jobs", err, nil).Render(w)
		return
	}
	if resultWithTotal.TotalJobs == 0 {
		httpjson.RenderStatus(w, http.StatusOK, httpresponse.NewEmptyPaginatedResponse(), httpjson.JSON)
		return
	}

	response, err := httpresponse.NewPaginatedResponse(r, resultWithTotal.Jobs, queryParams.Page, queryParams.PageLimit, resultWithTotal.TotalJobs)
	if err != nil {
		httperror.InternalError(ctx, "Cannot write paginated response for jobs", err, nil).Render(w)
		return
	}

	httpjson.RenderStatus(w, http.StatusOK, response, httpjson.JSON)
}

// GetJob returns a single job. Customers can only read their own jobs.
func (h JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	job, err := h.DispatchService.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve job", err, nil).Render(w)
		return
	}

	if customer, ok := middleware.CustomerFromContext(ctx); ok && job.CustomerID != customer.ID {
		httperror.NotFound("", nil, nil).Render(w)
		return
	}

	httpjson.Render(w, job, httpjson.JSON)
}

// PatchJobCancel cancels a job that has not started running.
func (h JobsHandler) PatchJobCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	if customer, ok := middleware.CustomerFromContext(ctx); ok {
		job, err := h.DispatchService.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, data.ErrRecordNotFound) {
				httperror.NotFound("", err, nil).Render(w)
				return
			}
			httperror.InternalError(ctx, "Cannot retrieve job", err, nil).Render(w)
			return
		}
		if job.CustomerID != customer.ID {
			httperror.NotFound("", nil, nil).Render(w)
			return
		}
	}

	cancelledJob, err := h.DispatchService.CancelJob(ctx, jobID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			httperror.NotFound("", err, nil).Render(w)
		case errors.Is(err, services.ErrInvalidStateTransition):
			httperror.Conflict("The job can no longer be cancelled.", err, nil).Render(w)
		default:
			httperror.InternalError(ctx, "Cannot cancel job", err, nil).Render(w)
		}
		return
	}

	httpjson.Render(w, cancelledJob, httpjson.JSON)
}

type ClaimJobRequest struct {
	RunnerID string `json:"runner_id"`
}

// PostJobClaim assigns a pending job to a runner.
func (h JobsHandler) PostJobClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	var req ClaimJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}
	if req.RunnerID == "" {
		httperror.BadRequest("Request invalid", nil, map[string]interface{}{"runner_id": "runner_id is required"}).Render(w)
		return
	}

	job, err := h.DispatchService.ClaimJob(ctx, jobID, req.RunnerID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			httperror.NotFound("", err, nil).Render(w)
		case errors.Is(err, services.ErrRunnerIncompatible):
			httperror.UnprocessableEntity("The runner is not compatible with the job type.", err, nil).Render(w)
		case errors.Is(err, services.ErrRunnerUnhealthy):
			httperror.UnprocessableEntity("The runner has not heartbeated recently enough.", err, nil).Render(w)
		case errors.Is(err, services.ErrInvalidStateTransition):
			httperror.Conflict("The job is not pending.", err, nil).Render(w)
		default:
			httperror.InternalError(ctx, "Cannot claim job", err, nil).Render(w)
		}
		return
	}

	httpjson.Render(w, job, httpjson.JSON)
}

type CompleteJobRequest struct {
	Succeeded    bool            `json:"succeeded"`
	OutputData   json.RawMessage `json:"output_data,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

// PostJobComplete settles a running job with its final outcome and bills the
// customer.
func (h JobsHandler) PostJobComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	var req CompleteJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}
	if len(req.OutputData) > 0 && !json.Valid(req.OutputData) {
		httperror.BadRequest("Request invalid", nil, map[string]interface{}{"output_data": "output_data must be a valid JSON object"}).Render(w)
		return
	}

	job, err := h.DispatchService.CompleteJob(ctx, jobID, req.Succeeded, types.JSONText(req.OutputData), req.ErrorMessage)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			httperror.NotFound("", err, nil).Render(w)
		case errors.Is(err, services.ErrInvalidStateTransition):
			httperror.Conflict("The job is not running.", err, nil).Render(w)
		case errors.Is(err, services.ErrInsufficientFunds):
			httperror.PaymentRequired("", err, nil).Render(w)
		default:
			httperror.InternalError(ctx, "Cannot complete job", err, nil).Render(w)
		}
		return
	}

	httpjson.Render(w, job, httpjson.JSON)
}

type CostEstimateRequest struct {
	JobTypeID string `json:"job_type_id"`
	Priority  *int   `json:"priority,omitempty"`
}

type CostEstimateResponse struct {
	JobTypeID          string           `json:"job_type_id"`
	Priority           data.JobPriority `json:"priority"`
	EstimatedCostCents int              `json:"estimated_cost_cents"`
}

// PostCostEstimate prices a job type at a priority without admitting a job.
func (h JobsHandler) PostCostEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CostEstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	priority := data.MediumJobPriority
	if req.Priority != nil {
		priority = data.JobPriority(*req.Priority)
		if priority.Validate() != nil {
			httperror.BadRequest("Request invalid", nil, map[string]interface{}{"priority": "priority must be between 0 (low) and 3 (critical)"}).Render(w)
			return
		}
	}

	jobType, err := h.Models.JobTypes.Get(ctx, h.DBConnectionPool, req.JobTypeID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("Job type not found.", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve job type", err, nil).Render(w)
		return
	}

	httpjson.Render(w, CostEstimateResponse{
		JobTypeID:          jobType.ID,
		Priority:           priority,
		EstimatedCostCents: h.BillingService.CalculateCost(jobType, priority),
	}, httpjson.JSON)
}

// GetStats aggregates job counts and billed amounts, scoped to the customer
// when one is authenticated.
func (h JobsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var stats *data.JobStats
	var err error
	if customer, ok := middleware.CustomerFromContext(ctx); ok {
		stats, err = h.Models.Jobs.GetStatsByCustomerID(ctx, h.DBConnectionPool, customer.ID)
	} else {
		stats, err = h.Models.Jobs.GetStats(ctx, h.DBConnectionPool)
	}
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve job stats", err, nil).Render(w)
		return
	}

	httpjson.Render(w, stats, httpjson.JSON)
}
