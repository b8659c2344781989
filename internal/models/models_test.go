package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJob_Terminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			j := &Job{Status: tt.status}
			assert.Equal(t, tt.terminal, j.Terminal())
		})
	}
}

func TestJob_Summary(t *testing.T) {
	fireAt := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	j := &Job{
		ID:     "job-1",
		Kind:   KindOneShotEmail,
		Status: StatusPending,
		FireAt: fireAt,
		// Конфигурация задачи не попадает в листинг.
		Payload: `{"to":"user@example.com"}`,
	}

	s := j.Summary()
	assert.Equal(t, "job-1", s.JobID)
	assert.Equal(t, KindOneShotEmail, s.Kind)
	assert.Equal(t, StatusPending, s.Status)
	assert.True(t, s.ScheduledTime.Equal(fireAt))
}
