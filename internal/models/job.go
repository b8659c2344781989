package models

import "time"

type Job struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"` // one_shot_email, folder_watch
	Status          string     `json:"status"`
	FireAt          time.Time  `json:"fire_at"`
	IntervalMinutes int        `json:"interval_minutes"` // 0 для одноразовых задач
	Payload         string     `json:"payload"`
	LastError       *string    `json:"last_error"`
	CreatedAt       time.Time  `json:"created_at"`
	LastRunAt       *time.Time `json:"last_run_at"`
}

// Terminal reports whether the job will never fire again.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// JobSummary is the read-only projection returned by the listing API.
type JobSummary struct {
	JobID         string    `json:"job_id"`
	Kind          string    `json:"kind"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        string    `json:"status"`
}

func (j *Job) Summary() JobSummary {
	return JobSummary{
		JobID:         j.ID,
		Kind:          j.Kind,
		ScheduledTime: j.FireAt,
		Status:        j.Status,
	}
}
