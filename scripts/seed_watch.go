package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"postovik/internal/database"
	"postovik/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// WatchFile зеркалит models.WatchPayload с yaml-тегами, чтобы слот
// мониторинга можно было засеять напрямую, без HTTP API. Сервис
// подхватит обновлённый слот при следующем старте.
type WatchFile struct {
	TriggerFolderID   string            `yaml:"trigger_folder_id"`
	BackupFolderID    string            `yaml:"backup_folder_id"`
	SpreadsheetID     string            `yaml:"spreadsheet_id"`
	SheetName         string            `yaml:"sheet_name"`
	TemplateID        string            `yaml:"template_id"`
	OutputFolderID    string            `yaml:"output_folder_id"`
	RecipientEmail    string            `yaml:"recipient_email"`
	ColumnMappings    map[string]string `yaml:"column_mappings"`
	MappingPreset     string            `yaml:"mapping_preset"`
	ProcessFlagColumn string            `yaml:"process_flag_column"`
	ProcessFlagValue  string            `yaml:"process_flag_value"`
	StatusColumn      string            `yaml:"status_column"`
	IntervalMinutes   int               `yaml:"interval_minutes"`
	Enabled           bool              `yaml:"enabled"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		watchPath = flag.String("watch", "configs/watch.yaml", "path to watch config yaml")
		dbPath    = flag.String("db", "./data/postovik.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*watchPath)
	if err != nil {
		return fmt.Errorf("read watch config: %w", err)
	}
	var wf WatchFile
	if err = yaml.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("parse watch config: %w", err)
	}

	payload := models.WatchPayload{
		TriggerFolderID:   wf.TriggerFolderID,
		BackupFolderID:    wf.BackupFolderID,
		SpreadsheetID:     wf.SpreadsheetID,
		SheetName:         wf.SheetName,
		TemplateID:        wf.TemplateID,
		OutputFolderID:    wf.OutputFolderID,
		RecipientEmail:    wf.RecipientEmail,
		ColumnMappings:    wf.ColumnMappings,
		MappingPreset:     wf.MappingPreset,
		ProcessFlagColumn: wf.ProcessFlagColumn,
		ProcessFlagValue:  wf.ProcessFlagValue,
		StatusColumn:      wf.StatusColumn,
		IntervalMinutes:   wf.IntervalMinutes,
		Enabled:           wf.Enabled,
	}
	if payload.IntervalMinutes == 0 {
		payload.IntervalMinutes = models.DefaultWatchIntervalMinutes
	}
	if err = validate(&payload); err != nil {
		return err
	}

	raw, err := json.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, jobID, err := db.LoadWatchConfig(ctx)
	if err != nil && !errors.Is(err, models.ErrWatchNotConfigured) {
		return fmt.Errorf("load current slot: %w", err)
	}

	// Живую задачу со старой конфигурацией гасим, иначе сервис на
	// старте оставит её как есть и новый слот не подхватится.
	if jobID != "" {
		if err = db.CancelJob(ctx, jobID); err != nil && !errors.Is(err, models.ErrJobNotFound) {
			return fmt.Errorf("cancel stale watch job: %w", err)
		}
	}
	if err = db.SaveWatchConfig(ctx, string(raw), jobID); err != nil {
		return fmt.Errorf("save watch config: %w", err)
	}

	fmt.Printf("done: slot updated, enabled=%v interval=%dm\n", payload.Enabled, payload.IntervalMinutes)
	return nil
}

func validate(p *models.WatchPayload) error {
	if !p.Enabled {
		return nil
	}
	required := []struct {
		field, value string
	}{
		{"trigger_folder_id", p.TriggerFolderID},
		{"backup_folder_id", p.BackupFolderID},
		{"spreadsheet_id", p.SpreadsheetID},
		{"template_id", p.TemplateID},
		{"recipient_email", p.RecipientEmail},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return models.NewConfigError(r.field, "is required")
		}
	}
	if p.IntervalMinutes < 1 {
		return models.NewConfigError("interval_minutes", "must be at least 1")
	}
	return nil
}
