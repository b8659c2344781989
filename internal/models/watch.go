package models

import "time"

// WatchStatus is the flat snapshot returned by the watch status endpoint.
// It is not a history log: every cycle overwrites it.
type WatchStatus struct {
	IsMonitoringActive       bool          `json:"is_monitoring_active"`
	LastCheckAt              *time.Time    `json:"last_check_timestamp"`
	LastProcessedImageName   string        `json:"last_processed_image_name,omitempty"`
	LastProcessedImageStatus string        `json:"last_processed_image_status,omitempty"`
	LastProcessedAt          *time.Time    `json:"last_processed_timestamp"`
	ErrorMessage             string        `json:"error_message,omitempty"`
	CurrentConfig            *WatchPayload `json:"current_config,omitempty"`
}
