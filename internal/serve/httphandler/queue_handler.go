package httphandler

import (
	"net/http"

	"github.com/stellar/go/support/render/httpjson"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
	"github.com/innosystem/dispatch-platform-backend/internal/queue"
	"github.com/innosystem/dispatch-platform-backend/internal/serve/httperror"
)

type QueueHandler struct {
	Broker queue.Broker
}

type QueueStatusResponse struct {
	TotalDepth      int64            `json:"total_depth"`
	DepthByPriority map[string]int64 `json:"depth_by_priority"`
	NextJobID       *string          `json:"next_job_id,omitempty"`
}

// GetQueueStatus reports the FIFO depths and the id a pop would hand out.
// Admin only.
func (h QueueHandler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.Broker.Length(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot inspect queue", err, nil).Render(w)
		return
	}

	depths := make(map[string]int64, len(data.JobPriorities()))
	for _, priority := range data.JobPriorities() {
		depth, lengthErr := h.Broker.LengthByPriority(ctx, priority)
		if lengthErr != nil {
			httperror.InternalError(ctx, "Cannot inspect queue", lengthErr, nil).Render(w)
			return
		}
		depths[priority.String()] = depth
	}

	resp := QueueStatusResponse{TotalDepth: total, DepthByPriority: depths}
	if nextJobID, peekErr := h.Broker.PeekNext(ctx); peekErr == nil && nextJobID != "" {
		resp.NextJobID = &nextJobID
	}

	httpjson.Render(w, resp, httpjson.JSON)
}
