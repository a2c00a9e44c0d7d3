package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/innosystem/dispatch-platform-backend/db"
	"github.com/innosystem/dispatch-platform-backend/internal/crashtracker"
	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/monitor"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/services"
	"github.com/innosystem/dispatch-platform-backend/internal/utils"
)

const (
	heartbeatInterval = 30 * time.Second
	// Caps the pop backoff at 2^6 = 64 seconds.
	maxPopBackoffRetries = 6
)

type WorkerOptions struct {
	RunnerID          string
	MaxConcurrentJobs int
	PollInterval      time.Duration
	QueueTimeout      time.Duration

	Models             *data.Models
	DBConnectionPool   db.DBConnectionPool
	Broker             queue.Broker
	DispatchService    *services.JobDispatchService
	Processors         *ProcessorRegistry
	MonitorService     monitor.MonitorServiceInterface
	CrashTrackerClient crashtracker.CrashTrackerClient
}

// Worker drains the pending queues with a bounded pool of goroutines. Each
// slot pops a job id, claims it for the runner, runs the processor and
// settles the outcome. A separate goroutine heartbeats the runner row.
type Worker struct {
	opts WorkerOptions
}

func NewWorker(opts WorkerOptions) (*Worker, error) {
	if opts.RunnerID == "" {
		return nil, fmt.Errorf("runner id is required")
	}
	if opts.MaxConcurrentJobs <= 0 {
		return nil, fmt.Errorf("max concurrent jobs must be positive, got %d", opts.MaxConcurrentJobs)
	}
	if opts.Models == nil || opts.DBConnectionPool == nil || opts.Broker == nil || opts.DispatchService == nil {
		return nil, fmt.Errorf("worker dependencies are incomplete")
	}
	if opts.Processors == nil {
		opts.Processors = NewProcessorRegistry(nil, opts.MonitorService)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 5 * time.Second
	}
	return &Worker{opts: opts}, nil
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	runner, err := w.opts.Models.Runners.Get(ctx, w.opts.DBConnectionPool, w.opts.RunnerID)
	if err != nil {
		return fmt.Errorf("loading runner %s: %w", w.opts.RunnerID, err)
	}
	log.Ctx(ctx).Infof("worker starting as runner %q with %d slot(s)", runner.Name, w.opts.MaxConcurrentJobs)

	if err = w.opts.Models.Runners.Heartbeat(ctx, w.opts.DBConnectionPool, w.opts.RunnerID); err != nil {
		return fmt.Errorf("recording initial heartbeat: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.heartbeatLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promotionLoop(ctx)
	}()

	for i := 0; i < w.opts.MaxConcurrentJobs; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.slotLoop(ctx, slot)
		}(i)
	}

	wg.Wait()
	log.Ctx(ctx).Info("worker stopped")
	return nil
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.opts.Models.Runners.Heartbeat(ctx, w.opts.DBConnectionPool, w.opts.RunnerID); err != nil {
				log.Ctx(ctx).Errorf("recording heartbeat: %v", err)
			}
		}
	}
}

// promotionLoop moves due scheduled jobs onto the pending queues.
func (w *Worker) promotionLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.opts.DispatchService.PromoteDueJobs(ctx); err != nil {
				log.Ctx(ctx).Errorf("promoting due jobs: %v", err)
			}
		}
	}
}

func (w *Worker) slotLoop(ctx context.Context, slot int) {
	consecutiveErrors := 0
	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := w.opts.Broker.Pop(ctx, w.opts.QueueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if consecutiveErrors < maxPopBackoffRetries {
				consecutiveErrors++
			}
			backoff, backoffErr := utils.ExponentialBackoffInSeconds(consecutiveErrors)
			if backoffErr != nil {
				backoff = time.Duration(1<<maxPopBackoffRetries) * time.Second
			}
			log.Ctx(ctx).Errorf("slot %d: popping from queue (attempt %d, backing off %s): %v", slot, consecutiveErrors, backoff, err)
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}
		consecutiveErrors = 0

		if jobID == "" {
			if !sleepCtx(ctx, w.opts.PollInterval) {
				return
			}
			continue
		}

		w.processJob(ctx, slot, jobID)
	}
}

func (w *Worker) processJob(ctx context.Context, slot int, jobID string) {
	startedAt := time.Now()

	job, err := w.opts.DispatchService.ClaimJob(ctx, jobID, w.opts.RunnerID)
	if err != nil {
		// Another claimant won, or the job was cancelled or deleted. Nothing
		// to settle or requeue.
		if errors.Is(err, services.ErrInvalidStateTransition) || errors.Is(err, data.ErrRecordNotFound) {
			log.Ctx(ctx).Debugf("slot %d: skipping job %s: %v", slot, jobID, err)
			return
		}
		// The job is still pending; this runner just cannot take it. Put the
		// id back so a compatible runner picks it up.
		log.Ctx(ctx).Warnf("slot %d: returning job %s to the queue: %v", slot, jobID, err)
		w.requeue(ctx, jobID)
		sleepCtx(ctx, w.opts.PollInterval)
		return
	}

	jobType, err := w.opts.Models.JobTypes.Get(ctx, w.opts.DBConnectionPool, job.JobTypeID)
	if err != nil {
		w.settle(ctx, job, nil, fmt.Errorf("loading job type %s: %w", job.JobTypeID, err))
		return
	}

	processor, err := w.opts.Processors.Resolve(jobType.ProcessorType)
	if err != nil {
		w.settle(ctx, job, nil, err)
		return
	}

	output, processErr := processor.Process(ctx, job, jobType)
	w.settle(ctx, job, output, processErr)

	if w.opts.MonitorService != nil {
		labels := monitor.JobLabels{
			JobType:  jobType.Name,
			Priority: job.Priority.String(),
			Status:   string(data.SucceededJobStatus),
		}
		if processErr != nil {
			labels.Status = string(data.FailedJobStatus)
		}
		if monitorErr := w.opts.MonitorService.MonitorDuration(time.Since(startedAt), monitor.JobProcessingDurationTag, labels.ToMap()); monitorErr != nil {
			log.Ctx(ctx).Errorf("monitoring job processing duration: %v", monitorErr)
		}
	}
}

// requeue puts a popped id back on its priority FIFO after a claim the job
// did not lose. Skipped when the row is no longer pending.
func (w *Worker) requeue(ctx context.Context, jobID string) {
	job, err := w.opts.Models.Jobs.Get(ctx, w.opts.DBConnectionPool, jobID)
	if err != nil {
		log.Ctx(ctx).Errorf("loading job %s for requeue: %v", jobID, err)
		return
	}
	if job.Status != data.PendingJobStatus {
		return
	}

	if err = w.opts.Broker.Push(ctx, job.ID, job.Priority); err != nil {
		// The row stays pending; the pending scan recovers it.
		log.Ctx(ctx).Errorf("requeueing job %s: %v", job.ID, err)
	}
}

func (w *Worker) settle(ctx context.Context, job *data.Job, output []byte, processErr error) {
	var errorMessage *string
	succeeded := processErr == nil
	if processErr != nil {
		errorMessage = utils.StringPtr(processErr.Error())
		log.Ctx(ctx).Warnf("job %s failed: %v", job.ID, processErr)
	}

	_, err := w.opts.DispatchService.CompleteJob(ctx, job.ID, succeeded, output, errorMessage)
	if err != nil {
		if w.opts.CrashTrackerClient != nil {
			w.opts.CrashTrackerClient.LogAndReportErrors(ctx, err, fmt.Sprintf("settling job %s", job.ID))
		} else {
			log.Ctx(ctx).Errorf("settling job %s: %v", job.ID, err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
