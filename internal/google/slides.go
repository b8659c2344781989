package google

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"postovik/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/slides/v1"
)

// SlidesRenderer turns a Slides template plus substitutions into a PNG in
// Drive: copy the template, replace placeholders, export the first slide,
// upload the image, drop the temporary copy.
type SlidesRenderer struct {
	service *slides.Service
	drive   *DriveService
	client  *http.Client
	retry   RetryPolicy
	logger  *zerolog.Logger
}

func NewSlidesRenderer(ctx context.Context, creds *Credentials, driveService *DriveService, logger *zerolog.Logger) (*SlidesRenderer, error) {
	client, err := creds.Client(ctx, "", slides.PresentationsScope)
	if err != nil {
		return nil, err
	}

	srv, err := slides.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Slides service: %v", err)
	}

	return &SlidesRenderer{
		service: srv,
		drive:   driveService,
		client:  client,
		retry:   DefaultRetryPolicy,
		logger:  logger,
	}, nil
}

func (r *SlidesRenderer) Render(ctx context.Context, templateID string, substitutions map[string]string, imageURL, outputFolderID string) (string, error) {
	tempID, err := r.drive.Copy(ctx, templateID, outputFolderID)
	if err != nil {
		return "", &models.RenderError{TemplateID: templateID, Err: fmt.Errorf("copy template: %w", err)}
	}
	// Временная копия не должна пережить рендер
	defer func() {
		if err := r.drive.Delete(context.WithoutCancel(ctx), tempID); err != nil {
			r.logger.Warn().Err(err).Str("file_id", tempID).Msg("failed to delete temporary template copy")
		}
	}()

	if err := r.replaceText(ctx, tempID, substitutions); err != nil {
		return "", &models.RenderError{TemplateID: templateID, Err: err}
	}

	if imageURL != "" {
		if err := r.replaceImages(ctx, tempID, imageURL); err != nil {
			return "", &models.RenderError{TemplateID: templateID, Err: err}
		}
	}

	content, err := r.exportFirstSlide(ctx, tempID)
	if err != nil {
		return "", &models.RenderError{TemplateID: templateID, Err: err}
	}

	name := fmt.Sprintf("post_%s.png", time.Now().Format("20060102_150405"))
	artifactID, err := r.drive.Upload(ctx, name, "image/png", outputFolderID, bytes.NewReader(content))
	if err != nil {
		return "", &models.RenderError{TemplateID: templateID, Err: fmt.Errorf("upload artifact: %w", err)}
	}

	r.logger.Info().Str("template_id", templateID).Str("artifact_id", artifactID).Msg("template rendered")
	return artifactID, nil
}

func (r *SlidesRenderer) replaceText(ctx context.Context, presentationID string, substitutions map[string]string) error {
	if len(substitutions) == 0 {
		return nil
	}

	requests := make([]*slides.Request, 0, len(substitutions))
	for placeholder, value := range substitutions {
		requests = append(requests, &slides.Request{
			ReplaceAllText: &slides.ReplaceAllTextRequest{
				ContainsText: &slides.SubstringMatchCriteria{
					Text:      placeholder,
					MatchCase: false,
				},
				ReplaceText: value,
			},
		})
	}

	return withRetry(ctx, r.logger, r.retry, "slides.replace_text", func() error {
		_, err := r.service.Presentations.BatchUpdate(presentationID, &slides.BatchUpdatePresentationRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return err
	})
}

// replaceImages swaps every image element of the presentation for the
// given URL, keeping the element's size and position.
func (r *SlidesRenderer) replaceImages(ctx context.Context, presentationID, imageURL string) error {
	var pres *slides.Presentation
	err := withRetry(ctx, r.logger, r.retry, "slides.get", func() error {
		var err error
		pres, err = r.service.Presentations.Get(presentationID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("get presentation: %w", err)
	}

	var requests []*slides.Request
	for _, slide := range pres.Slides {
		for _, element := range slide.PageElements {
			if element.Image == nil {
				continue
			}
			requests = append(requests, &slides.Request{
				ReplaceImage: &slides.ReplaceImageRequest{
					ImageObjectId:      element.ObjectId,
					Url:                imageURL,
					ImageReplaceMethod: "CENTER_CROP",
				},
			})
		}
	}
	if len(requests) == 0 {
		r.logger.Warn().Str("presentation_id", presentationID).Msg("no image placeholders found in template")
		return nil
	}

	return withRetry(ctx, r.logger, r.retry, "slides.replace_images", func() error {
		_, err := r.service.Presentations.BatchUpdate(presentationID, &slides.BatchUpdatePresentationRequest{
			Requests: requests,
		}).Context(ctx).Do()
		return err
	})
}

func (r *SlidesRenderer) exportFirstSlide(ctx context.Context, presentationID string) ([]byte, error) {
	var pres *slides.Presentation
	err := withRetry(ctx, r.logger, r.retry, "slides.get", func() error {
		var err error
		pres, err = r.service.Presentations.Get(presentationID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get presentation: %w", err)
	}
	if len(pres.Slides) == 0 {
		return nil, fmt.Errorf("presentation %s has no slides", presentationID)
	}

	pageID := pres.Slides[0].ObjectId

	var thumb *slides.Thumbnail
	err = withRetry(ctx, r.logger, r.retry, "slides.thumbnail", func() error {
		var err error
		thumb, err = r.service.Presentations.Pages.GetThumbnail(presentationID, pageID).
			ThumbnailPropertiesMimeType("PNG").
			ThumbnailPropertiesThumbnailSize("LARGE").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get thumbnail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumb.ContentUrl, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch thumbnail: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
