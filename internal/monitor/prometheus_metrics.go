package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

func PrometheusMetrics() map[MetricTag]prometheus.Collector {
	metrics := make(map[MetricTag]prometheus.Collector)

	for tag, summaryVec := range SummaryVecMetrics {
		metrics[tag] = summaryVec
	}

	for tag, counter := range CounterMetrics {
		metrics[tag] = counter
	}

	for tag, histogramVec := range HistogramVecMetrics {
		metrics[tag] = histogramVec
	}

	for tag, counterVec := range CounterVecMetrics {
		metrics[tag] = counterVec
	}

	return metrics
}

var SummaryVecMetrics = map[MetricTag]*prometheus.SummaryVec{
	HttpRequestDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "dispatch", Subsystem: "http", Name: string(HttpRequestDurationTag),
		Help: "HTTP requests durations, sliding window = 10m",
	},
		[]string{"status", "route", "method"},
	),
	SuccessfulQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "dispatch", Subsystem: "db", Name: string(SuccessfulQueryDurationTag),
		Help: "Successful DB query durations",
	},
		[]string{"query_type"},
	),
	FailureQueryDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "dispatch", Subsystem: "db", Name: string(FailureQueryDurationTag),
		Help: "Failure DB query durations",
	},
		[]string{"query_type"},
	),
	JobProcessingDurationTag: prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "dispatch", Subsystem: "business", Name: string(JobProcessingDurationTag),
		Help: "Job processing durations from claim to settlement",
	},
		JobLabelNames,
	),
}

var CounterMetrics = map[MetricTag]prometheus.Counter{
	JobsReassignedCounterTag: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Subsystem: "business", Name: string(JobsReassignedCounterTag),
		Help: "A counter of stalled jobs returned to the pending queue by the sweep",
	}),
	JobsPromotedCounterTag: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Subsystem: "business", Name: string(JobsPromotedCounterTag),
		Help: "A counter of scheduled jobs promoted to the priority queues",
	}),
}

var HistogramVecMetrics = map[MetricTag]*prometheus.HistogramVec{
	WebhookDeliveryDurationTag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dispatch", Subsystem: "webhook", Name: string(WebhookDeliveryDurationTag),
		Help: "A histogram of webhook delivery durations",
	},
		WebhookLabelNames,
	),
}

var CounterVecMetrics = map[MetricTag]*prometheus.CounterVec{
	JobsSubmittedCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch", Subsystem: "business", Name: string(JobsSubmittedCounterTag),
		Help: "A counter of admitted job submissions",
	},
		[]string{"job_type", "priority"},
	),
	JobsProcessedCounterTag: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch", Subsystem: "business", Name: string(JobsProcessedCounterTag),
		Help: "A counter of processed jobs by final status",
	},
		JobLabelNames,
	),
}
