package models

// RowOutcome is the result of processing one spreadsheet row. The status
// value is also written back to the sheet's status column.
type RowOutcome struct {
	RowIndex    int    `json:"row_index"`
	MatchedFlag bool   `json:"matched_flag"`
	ArtifactID  string `json:"artifact_id,omitempty"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
}

// BatchSummary aggregates one row-processor invocation. Delivered stays
// false when rendering produced artifacts but the email send failed; the
// Message distinguishes that case from "nothing generated".
type BatchSummary struct {
	Processed   int          `json:"processed"`
	Skipped     int          `json:"skipped"`
	Outcomes    []RowOutcome `json:"outcomes"`
	ArtifactIDs []string     `json:"artifact_ids"`
	Delivered   bool         `json:"delivered"`
	DeliveryID  string       `json:"delivery_id,omitempty"`
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
}
