package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncScheduled("one_shot_email")
		IncCompleted("folder_watch", "succeeded")
		ObserveJobDuration("one_shot_email", 250*time.Millisecond)
		IncWatchCycle("processed")
		AddRowsProcessed("sent", 3)
		IncHTTP("schedule")
	})
}
