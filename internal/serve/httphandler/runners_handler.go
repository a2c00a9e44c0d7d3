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
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

type RunnersHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
	HealthService    *services.RunnerHealthService
}

func (h RunnersHandler) GetRunners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runners, err := h.Models.Runners.GetAll(ctx, h.DBConnectionPool)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve runners", err, nil).Render(w)
		return
	}

	httpjson.Render(w, runners, httpjson.JSON)
}

func (h RunnersHandler) GetRunner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	runner, err := h.Models.Runners.Get(ctx, h.DBConnectionPool, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve runner", err, nil).Render(w)
		return
	}

	httpjson.Render(w, runner, httpjson.JSON)
}

type RunnerRequest struct {
	Name               string   `json:"name"`
	Description        *string  `json:"description,omitempty"`
	CompatibleJobTypes []string `json:"compatible_job_types"`
}

func (h RunnersHandler) PostRunner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RunnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	runner, err := h.Models.Runners.Insert(ctx, data.RunnerInsert{
		Name:               req.Name,
		Description:        req.Description,
		CompatibleJobTypes: req.CompatibleJobTypes,
	})
	if err != nil {
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	httpjson.RenderStatus(w, http.StatusCreated, runner, httpjson.JSON)
}

type PatchRunnerRequest struct {
	Name               *string  `json:"name,omitempty"`
	Description        *string  `json:"description,omitempty"`
	Status             *string  `json:"status,omitempty"`
	CompatibleJobTypes []string `json:"compatible_job_types,omitempty"`
}

func (h RunnersHandler) PatchRunner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PatchRunnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).Render(w)
		return
	}

	update := data.RunnerUpdate{
		Name:               req.Name,
		Description:        req.Description,
		CompatibleJobTypes: req.CompatibleJobTypes,
	}
	if req.Status != nil {
		status := data.RunnerStatus(*req.Status)
		if err := status.Validate(); err != nil {
			httperror.BadRequest("Request invalid", err, map[string]interface{}{"status": "invalid runner status"}).Render(w)
			return
		}
		update.Status = &status
	}

	runner, err := h.Models.Runners.Update(ctx, chi.URLParam(r, "id"), update)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.BadRequest("", err, nil).Render(w)
		return
	}

	httpjson.Render(w, runner, httpjson.JSON)
}

func (h RunnersHandler) DeleteRunner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Models.Runners.Delete(ctx, h.DBConnectionPool, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot delete runner", err, nil).Render(w)
		return
	}

	httpjson.RenderStatus(w, http.StatusNoContent, nil, httpjson.JSON)
}

// PostHeartbeat stamps the runner's liveness with the database clock.
func (h RunnersHandler) PostHeartbeat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Models.Runners.Heartbeat(ctx, h.DBConnectionPool, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot record heartbeat", err, nil).Render(w)
		return
	}

	httpjson.Render(w, map[string]string{"status": "ok"}, httpjson.JSON)
}

type RunnerHealthResponse struct {
	RunnerID string                `json:"runner_id"`
	Health   services.HealthStatus `json:"health"`
}

// GetHealth classifies the runner against the heartbeat thresholds.
func (h RunnersHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runnerID := chi.URLParam(r, "id")

	health, err := h.HealthService.CheckRunnerHealth(ctx, runnerID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound("", err, nil).Render(w)
			return
		}
		httperror.InternalError(ctx, "Cannot check runner health", err, nil).Render(w)
		return
	}

	httpjson.Render(w, RunnerHealthResponse{RunnerID: runnerID, Health: health}, httpjson.JSON)
}

type ReassignStalledResponse struct {
	ReassignedJobs int `json:"reassigned_jobs"`
}

// PostReassignStalled runs the stall sweep on demand.
func (h RunnersHandler) PostReassignStalled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reassigned, err := h.HealthService.ReassignStalledJobs(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot reassign stalled jobs", err, nil).Render(w)
		return
	}

	httpjson.Render(w, ReassignStalledResponse{ReassignedJobs: reassigned}, httpjson.JSON)
}
