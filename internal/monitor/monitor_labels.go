package monitor

type HttpRequestLabels struct {
	Status string
	Route  string
	Method string
}

type DBQueryLabels struct {
	QueryType string
}

type JobLabels struct {
	JobType  string
	Priority string
	Status   string
}

func (j JobLabels) ToMap() map[string]string {
	return map[string]string{
		"job_type": j.JobType,
		"priority": j.Priority,
		"status":   j.Status,
	}
}

var JobLabelNames = []string{"job_type", "priority", "status"}

type WebhookLabels struct {
	JobType    string
	StatusCode string
}

func (w WebhookLabels) ToMap() map[string]string {
	return map[string]string{
		"job_type":    w.JobType,
		"status_code": w.StatusCode,
	}
}

var WebhookLabelNames = []string{"job_type", "status_code"}
