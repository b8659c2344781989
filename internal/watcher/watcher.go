package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"postovik/internal/domain"
	"postovik/internal/events"
	"postovik/internal/metrics"
	"postovik/internal/models"
	"postovik/internal/pipeline"

	"github.com/rs/zerolog"
)

// Jobs is the scheduler surface the watcher needs.
type Jobs interface {
	Schedule(ctx context.Context, job *models.Job) (string, error)
	Cancel(ctx context.Context, id string) error
	Reconfigure(ctx context.Context, id, payload string, intervalMinutes int) error
}

// Pipeline runs one generate-and-deliver batch.
type Pipeline interface {
	Process(ctx context.Context, in pipeline.ProcessInput) (*models.BatchSummary, error)
}

// Service owns the single folder-watch configuration: it registers the
// recurring job, runs each poll cycle and keeps the status snapshot current.
type Service struct {
	store    domain.JobStore
	repo     domain.StatusRepository
	files    domain.FileStore
	pipeline Pipeline
	jobs     Jobs
	bus      domain.EventPublisher
	logger   *zerolog.Logger

	// Именованные наборы соответствий плейсхолдеров колонкам,
	// загружаются из configs/mappings.yaml при старте.
	presets         map[string]map[string]string
	defaultInterval int

	mu sync.Mutex
}

func NewService(
	store domain.JobStore,
	repo domain.StatusRepository,
	files domain.FileStore,
	pipe Pipeline,
	jobs Jobs,
	bus domain.EventPublisher,
	presets map[string]map[string]string,
	defaultInterval int,
	logger *zerolog.Logger,
) *Service {
	if defaultInterval < 1 {
		defaultInterval = models.DefaultWatchIntervalMinutes
	}
	return &Service{
		store:           store,
		repo:            repo,
		files:           files,
		pipeline:        pipe,
		jobs:            jobs,
		bus:             bus,
		presets:         presets,
		defaultInterval: defaultInterval,
		logger:          logger,
	}
}

// Configure validates and applies a folder-watch configuration. There is
// exactly one watch slot: configuring replaces the previous configuration
// but keeps the accumulated last-processed state. Disabling takes the job
// out of the fire rotation without deleting its record, so status queries
// keep answering.
func (s *Service) Configure(ctx context.Context, payload *models.WatchPayload) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if payload.IntervalMinutes == 0 {
		payload.IntervalMinutes = s.defaultInterval
	}

	if err := s.validate(payload); err != nil {
		return "", "", err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("encode watch payload: %w", err)
	}

	_, prevJobID, slotErr := s.store.LoadWatchConfig(ctx)
	if slotErr != nil && !errors.Is(slotErr, models.ErrWatchNotConfigured) {
		return "", "", slotErr
	}

	if !payload.Enabled {
		if prevJobID != "" {
			if err := s.jobs.Cancel(ctx, prevJobID); err != nil && !errors.Is(err, models.ErrJobNotFound) {
				return "", "", err
			}
		}
		if err := s.store.SaveWatchConfig(ctx, string(raw), prevJobID); err != nil {
			return "", "", err
		}
		s.updateSnapshot(ctx, func(snap *models.WatchStatus) {
			snap.IsMonitoringActive = false
			snap.CurrentConfig = payload
		})
		s.logger.Info().Msg("Monitoring disabled")
		return "", "Monitoring disabled.", nil
	}

	jobID := prevJobID
	reconfigured := false
	if prevJobID != "" {
		prev, err := s.store.GetJob(ctx, prevJobID)
		if err == nil && !prev.Terminal() {
			if err := s.jobs.Reconfigure(ctx, prevJobID, string(raw), payload.IntervalMinutes); err != nil {
				return "", "", err
			}
			reconfigured = true
		} else if err != nil && !errors.Is(err, models.ErrJobNotFound) {
			return "", "", err
		}
	}

	if !reconfigured {
		job := &models.Job{
			Kind:            models.KindFolderWatch,
			IntervalMinutes: payload.IntervalMinutes,
			Payload:         string(raw),
		}
		id, err := s.jobs.Schedule(ctx, job)
		if err != nil {
			return "", "", err
		}
		jobID = id
	}

	if err := s.store.SaveWatchConfig(ctx, string(raw), jobID); err != nil {
		return "", "", err
	}

	s.updateSnapshot(ctx, func(snap *models.WatchStatus) {
		snap.IsMonitoringActive = true
		snap.CurrentConfig = payload
		snap.ErrorMessage = ""
	})

	s.logger.Info().
		Str("job_id", jobID).
		Str("trigger_folder_id", payload.TriggerFolderID).
		Int("interval_minutes", payload.IntervalMinutes).
		Msg("Monitoring enabled")
	return jobID, "Monitoring enabled.", nil
}

// Resume re-registers the watch job after a restart when its row is gone
// from the store. The job row normally survives restarts, so this is only
// a repair for a pruned or manually removed record.
func (s *Service) Resume(ctx context.Context) error {
	raw, jobID, err := s.store.LoadWatchConfig(ctx)
	if errors.Is(err, models.ErrWatchNotConfigured) {
		return nil
	}
	if err != nil {
		return err
	}

	var payload models.WatchPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("decode watch slot: %w", err)
	}
	if !payload.Enabled {
		return nil
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err == nil && !job.Terminal() {
		return nil
	}
	if err != nil && !errors.Is(err, models.ErrJobNotFound) {
		return err
	}

	newJob := &models.Job{
		Kind:            models.KindFolderWatch,
		IntervalMinutes: payload.IntervalMinutes,
		Payload:         raw,
	}
	newID, err := s.jobs.Schedule(ctx, newJob)
	if err != nil {
		return err
	}
	if err := s.store.SaveWatchConfig(ctx, raw, newID); err != nil {
		return err
	}

	s.logger.Warn().
		Str("old_job_id", jobID).
		Str("job_id", newID).
		Msg("Watch job was missing, rescheduled from saved slot")
	return nil
}

// HandleJob is the scheduler handler for folder-watch jobs.
func (s *Service) HandleJob(ctx context.Context, job *models.Job) error {
	var payload models.WatchPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		return fmt.Errorf("decode watch payload: %w", err)
	}
	return s.RunCycle(ctx, job.ID, &payload)
}

// RunCycle performs one poll of the trigger folder. At most one file is
// processed per cycle; the rest stay for the following cycles. The cycle
// never disables the job, transient errors are recorded and retried on the
// next interval.
func (s *Service) RunCycle(ctx context.Context, jobID string, cfg *models.WatchPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.loadSnapshot(ctx)
	now := time.Now()
	snap.IsMonitoringActive = true
	snap.LastCheckAt = &now
	snap.ErrorMessage = ""
	snap.CurrentConfig = cfg

	s.logger.Debug().
		Str("job_id", jobID).
		Str("trigger_folder_id", cfg.TriggerFolderID).
		Msg("Checking trigger folder")

	files, err := s.files.ListImages(ctx, cfg.TriggerFolderID)
	if err != nil {
		snap.LastProcessedImageStatus = models.WatchImageCheckError
		snap.ErrorMessage = fmt.Sprintf("Error during folder check: %v", err)
		s.saveSnapshot(ctx, snap)
		metrics.IncWatchCycle("error")
		s.publishCycle(jobID, "", nil, snap.ErrorMessage)
		return err
	}

	if len(files) == 0 {
		// Чистый пустой цикл: last_processed не трогаем
		s.saveSnapshot(ctx, snap)
		metrics.IncWatchCycle("empty")
		s.logger.Debug().Str("job_id", jobID).Msg("No files in trigger folder")
		return nil
	}

	file := files[0]
	s.logger.Info().
		Str("job_id", jobID).
		Str("file_id", file.ID).
		Str("file_name", file.Name).
		Msg("Found image in trigger folder")

	detectedAt := time.Now()
	snap.LastProcessedImageName = file.Name
	snap.LastProcessedImageStatus = models.WatchImageDetected
	snap.LastProcessedAt = &detectedAt
	s.saveSnapshot(ctx, snap)

	summary, runErr := s.processTrigger(ctx, cfg, file)

	if runErr != nil {
		snap.LastProcessedImageStatus = models.WatchImageFailed
		snap.ErrorMessage = runErr.Error()
		s.saveSnapshot(ctx, snap)
		metrics.IncWatchCycle("failed")
		s.publishCycle(jobID, file.Name, summary, runErr.Error())
		return runErr
	}

	if !summary.Success {
		// Ничего не сгенерировано: файл остаётся в папке
		snap.LastProcessedImageStatus = models.WatchImageFailed
		snap.ErrorMessage = summary.Message
		s.saveSnapshot(ctx, snap)
		metrics.IncWatchCycle("no_content")
		s.publishCycle(jobID, file.Name, summary, summary.Message)
		s.logger.Warn().
			Str("job_id", jobID).
			Str("file_name", file.Name).
			Str("message", summary.Message).
			Msg("Trigger file produced no posts")
		return nil
	}

	if !summary.Delivered {
		snap.LastProcessedImageStatus = models.WatchImageFailed
		snap.ErrorMessage = summary.Message
		s.saveSnapshot(ctx, snap)
		metrics.IncWatchCycle("failed")
		s.publishCycle(jobID, file.Name, summary, summary.Message)
		return errors.New(summary.Message)
	}

	// Копируем в бэкап и только после успешной копии удаляем оригинал,
	// чтобы файл не потерялся даже при сбое на этом шаге
	if _, err := s.files.Copy(ctx, file.ID, cfg.BackupFolderID); err != nil {
		return s.backupFailed(ctx, jobID, snap, summary, file, fmt.Errorf("backup copy failed: %w", err))
	}
	if err := s.files.Delete(ctx, file.ID); err != nil {
		return s.backupFailed(ctx, jobID, snap, summary, file, fmt.Errorf("remove trigger file failed: %w", err))
	}

	doneAt := time.Now()
	snap.LastProcessedImageStatus = models.WatchImageProcessed
	snap.LastProcessedAt = &doneAt
	snap.ErrorMessage = ""
	s.saveSnapshot(ctx, snap)
	metrics.IncWatchCycle("processed")
	s.publishCycle(jobID, file.Name, summary, "")

	s.logger.Info().
		Str("job_id", jobID).
		Str("file_name", file.Name).
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Msg("Trigger file processed and moved to backup")
	return nil
}

// Status returns the flat snapshot. Falls back to the persisted slot when
// the repository has nothing, so a restart does not lose the configuration.
func (s *Service) Status(ctx context.Context) (*models.WatchStatus, error) {
	snap, err := s.repo.LoadStatus(ctx)
	if err == nil && snap != nil {
		return snap, nil
	}

	raw, jobID, slotErr := s.store.LoadWatchConfig(ctx)
	if errors.Is(slotErr, models.ErrWatchNotConfigured) {
		return nil, models.ErrWatchNotConfigured
	}
	if slotErr != nil {
		return nil, slotErr
	}

	var payload models.WatchPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode watch slot: %w", err)
	}

	active := false
	if payload.Enabled && jobID != "" {
		if job, err := s.store.GetJob(ctx, jobID); err == nil && !job.Terminal() {
			active = true
		}
	}

	return &models.WatchStatus{
		IsMonitoringActive: active,
		CurrentConfig:      &payload,
	}, nil
}

// processTrigger runs the pipeline for the single synthetic row carrying
// the detected file as image payload.
func (s *Service) processTrigger(ctx context.Context, cfg *models.WatchPayload, file models.RemoteFile) (*models.BatchSummary, error) {
	imageURL, err := s.files.WebLink(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve image link: %w", err)
	}

	return s.pipeline.Process(ctx, pipeline.ProcessInput{
		SpreadsheetID:     cfg.SpreadsheetID,
		SheetName:         cfg.SheetName,
		TemplateID:        cfg.TemplateID,
		OutputFolderID:    cfg.OutputFolderID,
		Recipient:         cfg.RecipientEmail,
		Subject:           "Your generated posts",
		ColumnMappings:    cfg.ColumnMappings,
		ProcessFlagColumn: cfg.ProcessFlagColumn,
		ProcessFlagValue:  cfg.ProcessFlagValue,
		StatusColumn:      cfg.StatusColumn,
		ImageURL:          imageURL,
		MaxRows:           1,
	})
}

func (s *Service) backupFailed(ctx context.Context, jobID string, snap *models.WatchStatus, summary *models.BatchSummary, file models.RemoteFile, cause error) error {
	// Файл остаётся в папке и будет обработан повторно в следующем цикле
	snap.LastProcessedImageStatus = models.WatchImageBackupFailed
	snap.ErrorMessage = fmt.Sprintf("Posts generated and sent, but backup failed: %v", cause)
	s.saveSnapshot(ctx, snap)
	metrics.IncWatchCycle("backup_failed")
	s.publishCycle(jobID, file.Name, summary, snap.ErrorMessage)

	s.logger.Error().
		Err(cause).
		Str("job_id", jobID).
		Str("file_name", file.Name).
		Msg("Backup step failed, trigger file left in place")
	return cause
}

func (s *Service) validate(payload *models.WatchPayload) error {
	if !payload.Enabled {
		return nil
	}

	if strings.TrimSpace(payload.TriggerFolderID) == "" {
		return models.NewConfigError("trigger_folder_id", "is required")
	}
	if strings.TrimSpace(payload.BackupFolderID) == "" {
		return models.NewConfigError("backup_folder_id", "is required")
	}
	if strings.TrimSpace(payload.SpreadsheetID) == "" {
		return models.NewConfigError("spreadsheet_id", "is required")
	}
	if strings.TrimSpace(payload.TemplateID) == "" {
		return models.NewConfigError("template_id", "is required")
	}
	if strings.TrimSpace(payload.RecipientEmail) == "" {
		return models.NewConfigError("recipient_email", "is required")
	}
	if payload.IntervalMinutes < 1 {
		return models.NewConfigError("interval_minutes", "must be at least 1")
	}

	if len(payload.ColumnMappings) == 0 {
		preset := payload.MappingPreset
		if preset == "" {
			preset = "default"
		}
		mappings, ok := s.presets[preset]
		if !ok {
			return models.NewConfigError("mapping_preset", fmt.Sprintf("unknown preset %q", preset))
		}
		payload.ColumnMappings = mappings
		payload.MappingPreset = preset
	}

	if payload.ProcessFlagColumn != "" && payload.ProcessFlagValue == "" {
		payload.ProcessFlagValue = models.DefaultProcessFlagValue
	}

	return nil
}

func (s *Service) loadSnapshot(ctx context.Context) *models.WatchStatus {
	snap, err := s.repo.LoadStatus(ctx)
	if err != nil || snap == nil {
		return &models.WatchStatus{}
	}
	return snap
}

func (s *Service) saveSnapshot(ctx context.Context, snap *models.WatchStatus) {
	if err := s.repo.SaveStatus(ctx, snap); err != nil {
		s.logger.Error().Err(err).Msg("Failed to save watch status")
	}
}

func (s *Service) updateSnapshot(ctx context.Context, mutate func(*models.WatchStatus)) {
	snap := s.loadSnapshot(ctx)
	mutate(snap)
	s.saveSnapshot(ctx, snap)
}

func (s *Service) publishCycle(jobID, fileName string, summary *models.BatchSummary, errMsg string) {
	payload := events.WatchCyclePayload{
		JobID:    jobID,
		FileName: fileName,
		Error:    errMsg,
	}
	if summary != nil {
		payload.ProcessedRows = summary.Processed
		payload.SkippedRows = summary.Skipped
	}
	_ = s.bus.PublishJSON(events.EventWatchCycle, payload)
}
