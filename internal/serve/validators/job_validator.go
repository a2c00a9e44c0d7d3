package validators

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

// JobRequest is the submission payload accepted by the jobs endpoint.
type JobRequest struct {
	JobTypeID string          `json:"job_type_id"`
	ProjectID *string         `json:"project_id,omitempty"`
	Priority  *int            `json:"priority,omitempty"`
	InputData json.RawMessage `json:"input_data,omitempty"`
	RunAt     *time.Time      `json:"run_at,omitempty"`
}

type JobValidator struct {
	*Validator
}

func NewJobValidator() *JobValidator {
	return &JobValidator{Validator: NewValidator()}
}

// ValidateAndGetPriority checks the request and returns the effective
// priority, defaulting to medium when none was sent.
func (jv *JobValidator) ValidateAndGetPriority(req *JobRequest) data.JobPriority {
	jv.Check(strings.TrimSpace(req.JobTypeID) != "", "job_type_id", "job_type_id is required")

	priority := data.MediumJobPriority
	if req.Priority != nil {
		priority = data.JobPriority(*req.Priority)
		jv.CheckError(priority.Validate(), "priority", "priority must be between 0 (low) and 3 (critical)")
	}

	if len(req.InputData) > 0 && !json.Valid(req.InputData) {
		jv.AddError("input_data", "input_data must be a valid JSON object")
	}

	if req.RunAt != nil {
		jv.Check(req.RunAt.After(time.Now()), "run_at", "run_at must be in the future")
	}

	return priority
}
