package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx/types"
	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/monitor"
)

// Processor executes one job and returns its output payload.
type Processor interface {
	Process(ctx context.Context, job *data.Job, jobType *data.JobType) (types.JSONText, error)
}

// ProcessorRegistry resolves the processor for a job type.
type ProcessorRegistry struct {
	processors map[data.ProcessorType]Processor
}

func NewProcessorRegistry(httpClient *http.Client, monitorService monitor.MonitorServiceInterface) *ProcessorRegistry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: webhookTimeout}
	}

	echo := &EchoProcessor{}
	return &ProcessorRegistry{
		processors: map[data.ProcessorType]Processor{
			data.SyncProcessorType:        echo,
			data.AsyncProcessorType:       &TransformProcessor{},
			data.BatchProcessorType:       echo,
			data.ExternalApiProcessorType: echo,
			data.WebhookProcessorType:     &WebhookProcessor{httpClient: httpClient, monitorService: monitorService},
		},
	}
}

// Register replaces the processor for a type. Used to plug real processing
// logic on top of the defaults.
func (r *ProcessorRegistry) Register(processorType data.ProcessorType, processor Processor) {
	r.processors[processorType] = processor
}

func (r *ProcessorRegistry) Resolve(processorType data.ProcessorType) (Processor, error) {
	processor, ok := r.processors[processorType]
	if !ok {
		return nil, fmt.Errorf("no processor registered for type %s", processorType)
	}
	return processor, nil
}

// EchoProcessor returns the input payload unchanged. It backs the built-in
// job types that carry their own result.
type EchoProcessor struct{}

func (p *EchoProcessor) Process(ctx context.Context, job *data.Job, jobType *data.JobType) (types.JSONText, error) {
	if len(job.InputData) == 0 {
		return types.JSONText(`{}`), nil
	}
	return job.InputData, nil
}

// TransformProcessor uppercases the text field of the input and reports its
// character and word counts. Backs the async job types. A malformed text
// field succeeds with an error payload instead of failing the job.
type TransformProcessor struct{}

func (p *TransformProcessor) Process(ctx context.Context, job *data.Job, jobType *data.JobType) (types.JSONText, error) {
	var input map[string]json.RawMessage
	if len(job.InputData) > 0 {
		if err := json.Unmarshal(job.InputData, &input); err != nil {
			return nil, fmt.Errorf("parsing transform input: %w", err)
		}
	}

	rawText, ok := input["text"]
	if !ok {
		return types.JSONText(`{"error": "Missing text field in input"}`), nil
	}

	var text string
	if err := json.Unmarshal(rawText, &text); err != nil {
		return types.JSONText(`{"error": "Invalid text format, expected string"}`), nil
	}

	output, err := json.Marshal(map[string]any{
		"original_text":    text,
		"transformed_text": strings.ToUpper(text),
		"character_count":  len(text),
		"word_count":       len(strings.Fields(text)),
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling transform output: %w", err)
	}
	return types.JSONText(output), nil
}

const (
	webhookTimeout     = 10 * time.Second
	webhookMaxAttempts = 3
)

// webhookInput is the payload shape webhook jobs must carry.
type webhookInput struct {
	URL     string          `json:"url"`
	Payload json.RawMessage `json:"payload"`
}

// WebhookProcessor POSTs the job payload to the url in the input. Transient
// delivery failures are retried with exponential backoff before the job is
// failed.
type WebhookProcessor struct {
	httpClient     *http.Client
	monitorService monitor.MonitorServiceInterface
}

func (p *WebhookProcessor) Process(ctx context.Context, job *data.Job, jobType *data.JobType) (types.JSONText, error) {
	var input webhookInput
	if err := json.Unmarshal(job.InputData, &input); err != nil {
		return nil, fmt.Errorf("parsing webhook input: %w", err)
	}
	if input.URL == "" {
		return nil, fmt.Errorf("webhook input is missing the url")
	}

	payload := input.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	deliveryStartedAt := time.Now()
	var statusCode int
	err := retry.Do(
		func() error {
			reqCtx, cancel := context.WithTimeout(ctx, webhookTimeout)
			defer cancel()

			req, reqErr := http.NewRequestWithContext(reqCtx, http.MethodPost, input.URL, bytes.NewReader(payload))
			if reqErr != nil {
				return retry.Unrecoverable(fmt.Errorf("building webhook request: %w", reqErr))
			}
			req.Header.Set("Content-Type", "application/json")

			resp, respErr := p.httpClient.Do(req)
			if respErr != nil {
				if reqCtx.Err() == context.DeadlineExceeded {
					return fmt.Errorf("webhook timeout")
				}
				return fmt.Errorf("delivering webhook: %w", respErr)
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			statusCode = resp.StatusCode
			if resp.StatusCode >= 500 {
				return fmt.Errorf("webhook target returned %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("webhook target returned %d", resp.StatusCode))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(webhookMaxAttempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	p.monitorDelivery(ctx, jobType, statusCode, time.Since(deliveryStartedAt))
	if err != nil {
		return nil, err
	}

	output, err := json.Marshal(map[string]any{"delivered": true, "status_code": statusCode})
	if err != nil {
		return nil, fmt.Errorf("marshalling webhook output: %w", err)
	}
	return types.JSONText(output), nil
}

func (p *WebhookProcessor) monitorDelivery(ctx context.Context, jobType *data.JobType, statusCode int, duration time.Duration) {
	if p.monitorService == nil {
		return
	}
	labels := monitor.WebhookLabels{
		JobType:    jobType.Name,
		StatusCode: strconv.Itoa(statusCode),
	}
	if err := p.monitorService.MonitorHistogram(duration.Seconds(), monitor.WebhookDeliveryDurationTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring webhook delivery duration: %v", err)
	}
}
