package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

func Test_EchoProcessor_Process(t *testing.T) {
	ctx := context.Background()
	processor := &EchoProcessor{}

	t.Run("returns the input unchanged", func(t *testing.T) {
		job := &data.Job{InputData: types.JSONText(`{"message":"hello"}`)}
		output, err := processor.Process(ctx, job, &data.JobType{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"message":"hello"}`, string(output))
	})

	t.Run("empty input becomes an empty object", func(t *testing.T) {
		output, err := processor.Process(ctx, &data.Job{}, &data.JobType{})
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(output))
	})
}

func Test_TransformProcessor_Process(t *testing.T) {
	ctx := context.Background()
	processor := &TransformProcessor{}

	t.Run("uppercases the text and counts characters and words", func(t *testing.T) {
		job := &data.Job{InputData: types.JSONText(`{"text":"hello dispatch world"}`)}
		output, err := processor.Process(ctx, job, &data.JobType{})
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"original_text": "hello dispatch world",
			"transformed_text": "HELLO DISPATCH WORLD",
			"character_count": 20,
			"word_count": 3
		}`, string(output))
	})

	t.Run("missing text field succeeds with an error payload", func(t *testing.T) {
		job := &data.Job{InputData: types.JSONText(`{"message":"hi"}`)}
		output, err := processor.Process(ctx, job, &data.JobType{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"error": "Missing text field in input"}`, string(output))
	})

	t.Run("non-string text succeeds with an error payload", func(t *testing.T) {
		job := &data.Job{InputData: types.JSONText(`{"text":42}`)}
		output, err := processor.Process(ctx, job, &data.JobType{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"error": "Invalid text format, expected string"}`, string(output))
	})

	t.Run("malformed input fails the job", func(t *testing.T) {
		job := &data.Job{InputData: types.JSONText(`not json`)}
		_, err := processor.Process(ctx, job, &data.JobType{})
		require.Error(t, err)
	})
}

func Test_WebhookProcessor_Process(t *testing.T) {
	ctx := context.Background()
	jobType := &data.JobType{Name: "webhook_notify", ProcessorType: data.WebhookProcessorType}

	t.Run("delivers the payload and reports the status code", func(t *testing.T) {
		var receivedBody atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			receivedBody.Store(string(body))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		processor := &WebhookProcessor{httpClient: server.Client()}
		job := &data.Job{InputData: types.JSONText(`{"url":"` + server.URL + `","payload":{"event":"done"}}`)}

		output, err := processor.Process(ctx, job, jobType)
		require.NoError(t, err)
		assert.JSONEq(t, `{"delivered":true,"status_code":200}`, string(output))
		assert.JSONEq(t, `{"event":"done"}`, receivedBody.Load().(string))
	})

	t.Run("retries server errors until the target recovers", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		processor := &WebhookProcessor{httpClient: server.Client()}
		job := &data.Job{InputData: types.JSONText(`{"url":"` + server.URL + `"}`)}

		_, err := processor.Process(ctx, job, jobType)
		require.NoError(t, err)
		assert.EqualValues(t, 2, attempts.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		processor := &WebhookProcessor{httpClient: server.Client()}
		job := &data.Job{InputData: types.JSONText(`{"url":"` + server.URL + `"}`)}

		_, err := processor.Process(ctx, job, jobType)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "422")
		assert.EqualValues(t, 1, attempts.Load())
	})

	t.Run("missing url fails fast", func(t *testing.T) {
		processor := &WebhookProcessor{httpClient: http.DefaultClient}
		job := &data.Job{InputData: types.JSONText(`{"payload":{}}`)}

		_, err := processor.Process(ctx, job, jobType)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing the url")
	})
}

func Test_ProcessorRegistry_Resolve(t *testing.T) {
	registry := NewProcessorRegistry(nil, nil)

	for _, processorType := range []data.ProcessorType{
		data.SyncProcessorType,
		data.AsyncProcessorType,
		data.BatchProcessorType,
		data.ExternalApiProcessorType,
		data.WebhookProcessorType,
	} {
		processor, err := registry.Resolve(processorType)
		require.NoErrorf(t, err, "processor type %s", processorType)
		assert.NotNil(t, processor)
	}

	_, err := registry.Resolve(data.ProcessorType("bogus"))
	assert.Error(t, err)

	asyncProcessor, err := registry.Resolve(data.AsyncProcessorType)
	require.NoError(t, err)
	assert.IsType(t, &TransformProcessor{}, asyncProcessor)
}

func Test_WebhookProcessor_timeout(t *testing.T) {
	if testing.Short() {
		t.Skip("slow test")
	}

	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer server.Close()
	defer close(done)

	processor := &WebhookProcessor{httpClient: &http.Client{Timeout: 100 * time.Millisecond}}
	job := &data.Job{InputData: types.JSONText(`{"url":"` + server.URL + `"}`)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := processor.Process(ctx, job, &data.JobType{Name: "webhook_notify"})
	require.Error(t, err)
}
