package models

import "time"

// EmailPayload is the immutable configuration of a one-shot email job.
type EmailPayload struct {
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	CC          []string `json:"cc,omitempty"`
	ArtifactRef string   `json:"artifact_ref,omitempty"` // Drive file id attached to the email
}

// WatchPayload is the configuration of the recurring folder-watch job.
type WatchPayload struct {
	TriggerFolderID   string            `json:"trigger_folder_id"`
	BackupFolderID    string            `json:"backup_folder_id"`
	SpreadsheetID     string            `json:"spreadsheet_id"`
	SheetName         string            `json:"sheet_name"`
	TemplateID        string            `json:"template_id"`
	OutputFolderID    string            `json:"output_folder_id"`
	RecipientEmail    string            `json:"recipient_email"`
	ColumnMappings    map[string]string `json:"column_mappings,omitempty"`
	MappingPreset     string            `json:"mapping_preset,omitempty"`
	ProcessFlagColumn string            `json:"process_flag_column,omitempty"`
	ProcessFlagValue  string            `json:"process_flag_value,omitempty"`
	StatusColumn      string            `json:"status_column,omitempty"`
	IntervalMinutes   int               `json:"interval_minutes"`
	Enabled           bool              `json:"enabled"`
}

// TriggerDetection describes the file picked up by one folder-watch cycle.
// It lives only for the duration of that cycle.
type TriggerDetection struct {
	FileID     string
	FileName   string
	DetectedAt time.Time
}
