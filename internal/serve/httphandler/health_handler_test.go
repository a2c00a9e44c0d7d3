package httphandler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/db/dbtest"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
)

func Test_HealthHandler(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()

	t.Run("returns pass when the database and queue respond", func(t *testing.T) {
		dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
		require.NoError(t, err)
		defer dbConnectionPool.Close()

		handler := HealthHandler{
			Version:          "1.4.0",
			ServiceID:        "serve",
			ReleaseID:        "a6b2c3d",
			DBConnectionPool: dbConnectionPool,
			Broker:           queue.NewMemoryBroker(),
		}

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		wantBody := `{
			"status": "pass",
			"version": "1.4.0",
			"service_id": "serve",
			"release_id": "a6b2c3d",
			"services": {
				"database": "pass",
				"queue": "pass"
			}
		}`
		assert.JSONEq(t, wantBody, rr.Body.String())
	})

	t.Run("returns 503 when the database is unreachable", func(t *testing.T) {
		dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
		require.NoError(t, err)
		require.NoError(t, dbConnectionPool.Close())

		handler := HealthHandler{
			Version:          "1.4.0",
			ServiceID:        "serve",
			DBConnectionPool: dbConnectionPool,
		}

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

		wantBody := `{
			"status": "fail",
			"version": "1.4.0",
			"service_id": "serve",
			"services": {
				"database": "fail"
			}
		}`
		assert.JSONEq(t, wantBody, rr.Body.String())
	})
}
