package domain

import (
	"context"
	"time"

	"postovik/internal/models"
)

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListActiveJobs(ctx context.Context) ([]models.Job, error)
	DueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error)
	MarkJobRunning(ctx context.Context, id string, startedAt time.Time) error
	CompleteJob(ctx context.Context, id, status string, errMsg *string, nextFireAt *time.Time) error
	CancelJob(ctx context.Context, id string) error
	UpdateJobPayload(ctx context.Context, id, payload string, intervalMinutes int, fireAt time.Time) error
	ResetRunningJobs(ctx context.Context) (int64, error)
	PruneTerminalJobs(ctx context.Context, keep int) error
	SaveWatchConfig(ctx context.Context, payload, jobID string) error
	LoadWatchConfig(ctx context.Context) (payload, jobID string, err error)
}

type StatusRepository interface {
	SaveStatus(ctx context.Context, status *models.WatchStatus) error
	LoadStatus(ctx context.Context) (*models.WatchStatus, error)
	ClearStatus(ctx context.Context) error
}

type SheetReader interface {
	ReadSheet(ctx context.Context, spreadsheetID, sheetName string) ([][]string, error)
}

type SheetWriter interface {
	WriteCell(ctx context.Context, spreadsheetID, sheetName string, row, col int, value string) error
}

type TemplateRenderer interface {
	// Render produces one artifact from the template. A non-empty imageURL
	// additionally replaces the template's image placeholders.
	Render(ctx context.Context, templateID string, substitutions map[string]string, imageURL, outputFolderID string) (string, error)
}

type EmailSender interface {
	Send(ctx context.Context, msg models.OutgoingEmail) (string, error)
}

type FileStore interface {
	ListImages(ctx context.Context, folderID string) ([]models.RemoteFile, error)
	Copy(ctx context.Context, fileID, destFolderID string) (string, error)
	Delete(ctx context.Context, fileID string) error
	WebLink(ctx context.Context, fileID string) (string, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
