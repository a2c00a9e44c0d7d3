package httphandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/db/dbtest"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/middleware"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
)

func setupJobsHandler(t *testing.T) (JobsHandler, *data.Models, db.DBConnectionPool) {
	dbt := dbtest.Open(t)
	t.Cleanup(func() { dbt.Close() })
	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { dbConnectionPool.Close() })

	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	broker := queue.NewMemoryBroker()
	billingService := services.NewBillingService(models, dbConnectionPool)
	healthService := services.NewRunnerHealthService(models, dbConnectionPool, broker, nil)
	dispatchService := services.NewJobDispatchService(models, dbConnectionPool, billingService, healthService, broker, nil)

	handler := JobsHandler{
		Models:           models,
		DBConnectionPool: dbConnectionPool,
		DispatchService:  dispatchService,
		BillingService:   billingService,
	}

	return handler, models, dbConnectionPool
}

func requestAsCustomer(req *http.Request, customer *data.Customer) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.CustomerContextKey, customer)
	return req.WithContext(ctx)
}

func Test_JobsHandler_PostJob(t *testing.T) {
	handler, models, dbConnectionPool := setupJobsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := data.GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)

	t.Run("rejects an unfunded wallet with 402", func(t *testing.T) {
		body := `{"job_type_id": "` + jobType.ID + `", "priority": 2, "input_data": {"message": "hi"}}`
		req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostJob).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	})

	t.Run("admits a funded job with 201", func(t *testing.T) {
		data.FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 1_000)

		body := `{"job_type_id": "` + jobType.ID + `", "priority": 2, "input_data": {"message": "hi"}}`
		req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostJob).ServeHTTP(rr, req)

		require.Equal(t, http.StatusCreated, rr.Code)

		var job data.Job
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &job))
		assert.Equal(t, data.PendingJobStatus, job.Status)
		assert.Equal(t, data.HighJobPriority, job.Priority)
		assert.Equal(t, 100, job.EstimatedCostCents)
		assert.Equal(t, customer.ID, job.CustomerID)
	})

	t.Run("rejects a disabled job type with 422", func(t *testing.T) {
		disabledType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "legacy", data.SyncProcessorType, 100)
		require.NoError(t, models.JobTypes.SetEnabled(ctx, dbConnectionPool, disabledType.ID, false))

		body := `{"job_type_id": "` + disabledType.ID + `"}`
		req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostJob).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("rejects an out-of-range priority with 400", func(t *testing.T) {
		body := `{"job_type_id": "` + jobType.ID + `", "priority": 9}`
		req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostJob).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects an unauthenticated request with 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostJob).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func Test_JobsHandler_GetJob(t *testing.T) {
	handler, _, dbConnectionPool := setupJobsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	otherCustomer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Globex", "globex@example.com", nil)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)
	job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)

	router := chi.NewRouter()
	router.Get("/jobs/{id}", handler.GetJob)

	t.Run("owner reads the job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var gotJob data.Job
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &gotJob))
		assert.Equal(t, job.ID, gotJob.ID)
	})

	t.Run("another customer's job reads as 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
		req = requestAsCustomer(req, otherCustomer)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing job is 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs/daaa515e-5b27-44b9-b3ce-f02b77b1e863", nil)
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_JobsHandler_PatchJobCancel(t *testing.T) {
	handler, models, dbConnectionPool := setupJobsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := data.GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)
	data.FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 1_000)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)

	router := chi.NewRouter()
	router.Patch("/jobs/{id}/cancel", handler.PatchJobCancel)

	t.Run("cancels a pending job and releases the reservation", func(t *testing.T) {
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)
		_, err := models.Wallets.AdjustBalance(ctx, dbConnectionPool, wallet.ID, -100)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPatch, "/jobs/"+job.ID+"/cancel", nil)
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var cancelledJob data.Job
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cancelledJob))
		assert.Equal(t, data.CancelledJobStatus, cancelledJob.Status)

		updatedWallet, err := models.Wallets.Get(ctx, dbConnectionPool, wallet.ID)
		require.NoError(t, err)
		assert.Equal(t, 1_000, updatedWallet.BalanceCents)
	})

	t.Run("running job conflicts with 409", func(t *testing.T) {
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.RunningJobStatus, data.MediumJobPriority, 100)

		req := httptest.NewRequest(http.MethodPatch, "/jobs/"+job.ID+"/cancel", nil)
		req = requestAsCustomer(req, customer)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func Test_JobsHandler_PostJobClaim(t *testing.T) {
	handler, _, dbConnectionPool := setupJobsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)
	runner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-1", "echo")
	data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, runner.ID, time.Now())

	router := chi.NewRouter()
	router.Post("/jobs/{id}/claim", handler.PostJobClaim)

	t.Run("claims a pending job", func(t *testing.T) {
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)

		body := `{"runner_id": "` + runner.ID + `"}`
		req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID+"/claim", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var claimedJob data.Job
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &claimedJob))
		assert.Equal(t, data.RunningJobStatus, claimedJob.Status)
	})

	t.Run("missing runner_id is 400", func(t *testing.T) {
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)

		req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID+"/claim", strings.NewReader(`{}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("silent runner is 422", func(t *testing.T) {
		silentRunner := data.CreateRunnerFixture(t, ctx, dbConnectionPool, "runner-2", "echo")
		data.SetRunnerHeartbeatFixture(t, ctx, dbConnectionPool, silentRunner.ID, time.Now().Add(-10*time.Minute))
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)

		body := `{"runner_id": "` + silentRunner.ID + `"}`
		req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID+"/claim", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})
}

func Test_JobsHandler_PostJobComplete(t *testing.T) {
	handler, models, dbConnectionPool := setupJobsHandler(t)
	ctx := context.Background()

	customer := data.CreateCustomerFixture(t, ctx, dbConnectionPool, "Acme", "acme@example.com", nil)
	wallet := data.GetWalletFixture(t, ctx, dbConnectionPool, customer.ID)
	data.FundWalletFixture(t, ctx, dbConnectionPool, wallet.ID, customer.ID, 1_000)
	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)

	router := chi.NewRouter()
	router.Post("/jobs/{id}/complete", handler.PostJobComplete)

	t.Run("settles a running job", func(t *testing.T) {
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.RunningJobStatus, data.MediumJobPriority, 100)
		_, err := models.Wallets.AdjustBalance(ctx, dbConnectionPool, wallet.ID, -100)
		require.NoError(t, err)

		body := `{"succeeded": true, "output_data": {"ok": true}}`
		req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID+"/complete", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var completedJob data.Job
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &completedJob))
		assert.Equal(t, data.SucceededJobStatus, completedJob.Status)
		require.NotNil(t, completedJob.CostCents)
		assert.Equal(t, 100, *completedJob.CostCents)
	})

	t.Run("completing a pending job conflicts with 409", func(t *testing.T) {
		job := data.CreateJobFixture(t, ctx, dbConnectionPool, customer.ID, jobType.ID, data.PendingJobStatus, data.MediumJobPriority, 100)

		req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.ID+"/complete", strings.NewReader(`{"succeeded": true}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func Test_JobsHandler_PostCostEstimate(t *testing.T) {
	handler, _, dbConnectionPool := setupJobsHandler(t)
	ctx := context.Background()

	jobType := data.CreateJobTypeFixture(t, ctx, dbConnectionPool, "echo", data.SyncProcessorType, 100)

	t.Run("prices the job type at the requested priority", func(t *testing.T) {
		body := `{"job_type_id": "` + jobType.ID + `", "priority": 3}`
		req := httptest.NewRequest(http.MethodPost, "/jobs/cost-estimate", strings.NewReader(body))
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostCostEstimate).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		wantBody := `{
			"job_type_id": "` + jobType.ID + `",
			"priority": 3,
			"estimated_cost_cents": 200
		}`
		assert.JSONEq(t, wantBody, rr.Body.String())
	})

	t.Run("defaults to medium priority", func(t *testing.T) {
		body := `{"job_type_id": "` + jobType.ID + `"}`
		req := httptest.NewRequest(http.MethodPost, "/jobs/cost-estimate", strings.NewReader(body))
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostCostEstimate).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)

		var resp CostEstimateResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, data.MediumJobPriority, resp.Priority)
		assert.Equal(t, 100, resp.EstimatedCostCents)
	})

	t.Run("unknown job type is 404", func(t *testing.T) {
		body := `{"job_type_id": "daaa515e-5b27-44b9-b3ce-f02b77b1e863"}`
		req := httptest.NewRequest(http.MethodPost, "/jobs/cost-estimate", strings.NewReader(body))
		rr := httptest.NewRecorder()
		http.HandlerFunc(handler.PostCostEstimate).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
