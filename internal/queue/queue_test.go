package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/innosystem/dispatch-platform-backend/internal/data"
)

func Test_PendingKey(t *testing.T) {
	assert.Equal(t, "innosystem:jobs:p0:pending", PendingKey(data.LowJobPriority))
	assert.Equal(t, "innosystem:jobs:p3:pending", PendingKey(data.CriticalJobPriority))
}

func Test_PendingKeysByPriority_highestFirst(t *testing.T) {
	wantKeys := []string{
		"innosystem:jobs:p3:pending",
		"innosystem:jobs:p2:pending",
		"innosystem:jobs:p1:pending",
		"innosystem:jobs:p0:pending",
	}
	assert.Equal(t, wantKeys, PendingKeysByPriority())
}
