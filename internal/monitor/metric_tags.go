package monitor

type MetricTag string

const (
	SuccessfulQueryDurationTag MetricTag = "successful_queries_duration"
	FailureQueryDurationTag    MetricTag = "failure_queries_duration"
	HttpRequestDurationTag     MetricTag = "requests_duration_seconds"
	// Jobs:
	JobsSubmittedCounterTag  MetricTag = "jobs_submitted_counter"
	JobsProcessedCounterTag  MetricTag = "jobs_processed_counter"
	JobsReassignedCounterTag MetricTag = "jobs_reassigned_counter"
	JobsPromotedCounterTag   MetricTag = "jobs_promoted_counter"
	JobProcessingDurationTag MetricTag = "job_processing_duration_seconds"
	// Webhook deliveries performed by the external_api/webhook processors:
	WebhookDeliveryDurationTag MetricTag = "webhook_delivery_duration_seconds"
)

func (m MetricTag) ListAll() []MetricTag {
	return []MetricTag{
		SuccessfulQueryDurationTag,
		FailureQueryDurationTag,
		HttpRequestDurationTag,
		JobsSubmittedCounterTag,
		JobsProcessedCounterTag,
		JobsReassignedCounterTag,
		JobsPromotedCounterTag,
		JobProcessingDurationTag,
		WebhookDeliveryDurationTag,
	}
}
