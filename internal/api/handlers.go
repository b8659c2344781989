package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"postovik/internal/models"
	"postovik/internal/pipeline"
)

type scheduleEmailRequest struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	CC          []string  `json:"cc,omitempty"`
	ArtifactRef string    `json:"artifact_ref,omitempty"`
	FireTime    time.Time `json:"fire_time"`
}

func (s *HTTPServer) handleScheduleEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req scheduleEmailRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payload, err := json.Marshal(models.EmailPayload{
		To:          req.To,
		Subject:     req.Subject,
		Body:        req.Body,
		CC:          req.CC,
		ArtifactRef: req.ArtifactRef,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode payload")
		return
	}

	job := &models.Job{
		Kind:    models.KindOneShotEmail,
		FireAt:  req.FireTime,
		Payload: string(payload),
	}

	id, err := s.jobs.Schedule(r.Context(), job)
	if err != nil {
		var cfgErr *models.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("schedule email failed")
		writeError(w, http.StatusInternalServerError, "failed to schedule job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":         id,
		"scheduled_time": job.FireAt,
	})
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summaries, err := s.jobs.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list jobs failed")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if summaries == nil {
		summaries = []models.JobSummary{}
	}

	writeJSON(w, http.StatusOK, summaries)
}

type cancelJobResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *HTTPServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/jobs/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if !strings.HasSuffix(rest, "/cancel") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id := strings.TrimSpace(strings.TrimSuffix(rest, "/cancel"))
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	err := s.jobs.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrJobNotFound):
		// Unknown or already finished id is a result, not an error.
		writeJSON(w, http.StatusOK, cancelJobResponse{Success: false, Message: "job not found"})
	case err != nil:
		s.log.Error().Err(err).Str("job_id", id).Msg("cancel job failed")
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
	default:
		writeJSON(w, http.StatusOK, cancelJobResponse{Success: true, Message: "Job cancelled"})
	}
}

type watchConfigureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
}

func (s *HTTPServer) handleWatchConfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload models.WatchPayload
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	jobID, message, err := s.watch.Configure(r.Context(), &payload)
	if err != nil {
		var cfgErr *models.ConfigError
		if errors.As(err, &cfgErr) {
			writeJSON(w, http.StatusBadRequest, watchConfigureResponse{Success: false, Message: err.Error()})
			return
		}
		s.log.Error().Err(err).Msg("configure watch failed")
		writeJSON(w, http.StatusInternalServerError, watchConfigureResponse{Success: false, Message: "failed to configure folder watch"})
		return
	}

	writeJSON(w, http.StatusOK, watchConfigureResponse{Success: true, Message: message, JobID: jobID})
}

func (s *HTTPServer) handleWatchStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, err := s.watch.Status(r.Context())
	if err != nil {
		if errors.Is(err, models.ErrWatchNotConfigured) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("watch status failed")
		writeError(w, http.StatusInternalServerError, "failed to load watch status")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type generatePostsRequest struct {
	SpreadsheetID     string            `json:"spreadsheet_id"`
	SheetName         string            `json:"sheet_name"`
	TemplateID        string            `json:"slides_template_id"`
	OutputFolderID    string            `json:"drive_folder_id"`
	RecipientEmail    string            `json:"recipient_email"`
	ColumnMappings    map[string]string `json:"column_mappings,omitempty"`
	MappingPreset     string            `json:"mapping_preset,omitempty"`
	ProcessFlagColumn string            `json:"process_flag_column,omitempty"`
	ProcessFlagValue  string            `json:"process_flag_value,omitempty"`
	StatusColumn      string            `json:"status_column,omitempty"`
}

type generatePostsResponse struct {
	Success bool     `json:"success"`
	Count   int      `json:"count"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// handleGeneratePosts runs the row processor over the whole sheet right away,
// without going through the job registry.
func (s *HTTPServer) handleGeneratePosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req generatePostsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	required := []struct{ name, value string }{
		{"spreadsheet_id", req.SpreadsheetID},
		{"sheet_name", req.SheetName},
		{"slides_template_id", req.TemplateID},
		{"drive_folder_id", req.OutputFolderID},
		{"recipient_email", req.RecipientEmail},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			writeError(w, http.StatusBadRequest, f.name+" is required")
			return
		}
	}

	flagValue := req.ProcessFlagValue
	if req.ProcessFlagColumn != "" && flagValue == "" {
		flagValue = models.DefaultProcessFlagValue
	}

	// Запрос без явных соответствий разрешается через пресет, как и
	// конфигурация мониторинга.
	mappings := req.ColumnMappings
	if len(mappings) == 0 {
		preset := req.MappingPreset
		if preset == "" {
			preset = "default"
		}
		resolved, ok := s.presets[preset]
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mapping preset %q", preset))
			return
		}
		mappings = resolved
	}

	summary, err := s.posts.Process(r.Context(), pipeline.ProcessInput{
		SpreadsheetID:     req.SpreadsheetID,
		SheetName:         req.SheetName,
		TemplateID:        req.TemplateID,
		OutputFolderID:    req.OutputFolderID,
		Recipient:         req.RecipientEmail,
		ColumnMappings:    mappings,
		ProcessFlagColumn: req.ProcessFlagColumn,
		ProcessFlagValue:  flagValue,
		StatusColumn:      req.StatusColumn,
	})
	if err != nil {
		if errors.Is(err, models.ErrAuthExpired) {
			writeError(w, http.StatusUnauthorized, "authorization expired, re-authentication required")
			return
		}
		s.log.Error().Err(err).Str("spreadsheet_id", req.SpreadsheetID).Msg("generate posts failed")
		writeError(w, http.StatusInternalServerError, "failed to generate posts")
		return
	}

	files := summary.ArtifactIDs
	if files == nil {
		files = []string{}
	}

	writeJSON(w, http.StatusOK, generatePostsResponse{
		Success: summary.Success,
		Count:   summary.Processed,
		Message: summary.Message,
		Files:   files,
	})
}
