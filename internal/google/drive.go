package google

import (
	"context"
	"fmt"
	"io"
	"time"

	"postovik/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveService lists the trigger folder, relocates processed images and
// stores rendered artifacts.
type DriveService struct {
	service *drive.Service
	retry   RetryPolicy
	logger  *zerolog.Logger
}

func NewDriveService(ctx context.Context, creds *Credentials, logger *zerolog.Logger) (*DriveService, error) {
	client, err := creds.Client(ctx, "", drive.DriveScope)
	if err != nil {
		return nil, err
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %v", err)
	}

	return &DriveService{
		service: srv,
		retry:   DefaultRetryPolicy,
		logger:  logger,
	}, nil
}

// ListImages returns the image files of a folder ordered by creation time,
// oldest first. The listing order decides which file a watch cycle picks,
// so it has to be deterministic.
func (d *DriveService) ListImages(ctx context.Context, folderID string) ([]models.RemoteFile, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed = false", folderID)

	var resp *drive.FileList
	err := withRetry(ctx, d.logger, d.retry, "drive.list", func() error {
		var err error
		resp, err = d.service.Files.List().
			Q(query).
			OrderBy("createdTime").
			Fields("files(id, name, mimeType, createdTime)").
			PageSize(100).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
	}

	files := make([]models.RemoteFile, 0, len(resp.Files))
	for _, f := range resp.Files {
		created, _ := time.Parse(time.RFC3339, f.CreatedTime)
		files = append(files, models.RemoteFile{
			ID:          f.Id,
			Name:        f.Name,
			MimeType:    f.MimeType,
			CreatedTime: created,
		})
	}
	return files, nil
}

// Copy duplicates a file into the destination folder and returns the new
// file id. The source stays where it is.
func (d *DriveService) Copy(ctx context.Context, fileID, destFolderID string) (string, error) {
	var copied *drive.File
	err := withRetry(ctx, d.logger, d.retry, "drive.copy", func() error {
		var err error
		copied, err = d.service.Files.Copy(fileID, &drive.File{
			Parents: []string{destFolderID},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy file %s: %w", fileID, err)
	}
	return copied.Id, nil
}

func (d *DriveService) Delete(ctx context.Context, fileID string) error {
	err := withRetry(ctx, d.logger, d.retry, "drive.delete", func() error {
		return d.service.Files.Delete(fileID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	return nil
}

// Upload stores content as a new file in the folder and returns its id.
func (d *DriveService) Upload(ctx context.Context, name, mimeType, folderID string, content io.Reader) (string, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}

	// Media uploads are not replayed: a retry would re-read a drained reader.
	created, err := d.service.Files.Create(meta).Media(content).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, wrapAuthError(err))
	}
	return created.Id, nil
}

// WebLink returns a direct-download URL for a file, used when the Slides
// API needs to fetch the image itself.
func (d *DriveService) WebLink(ctx context.Context, fileID string) (string, error) {
	var meta *drive.File
	err := withRetry(ctx, d.logger, d.retry, "drive.weblink", func() error {
		var err error
		meta, err = d.service.Files.Get(fileID).Fields("webContentLink").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get link for file %s: %w", fileID, err)
	}
	return meta.WebContentLink, nil
}

// Download fetches a file's content and display name.
func (d *DriveService) Download(ctx context.Context, fileID string) ([]byte, string, error) {
	var meta *drive.File
	err := withRetry(ctx, d.logger, d.retry, "drive.meta", func() error {
		var err error
		meta, err = d.service.Files.Get(fileID).Fields("name", "mimeType").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file %s: %w", fileID, err)
	}

	resp, err := d.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file %s: %w", fileID, wrapAuthError(err))
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return content, meta.Name, nil
}
