package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"postovik/internal/domain"
	"postovik/internal/models"

	"github.com/rs/zerolog"
)

// NewEmailHandler returns the handler for one-shot email jobs.
func NewEmailHandler(sender domain.EmailSender, logger *zerolog.Logger) Handler {
	return func(ctx context.Context, job *models.Job) error {
		var payload models.EmailPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}

		msg := models.OutgoingEmail{
			To:      payload.To,
			Subject: payload.Subject,
			Body:    payload.Body,
			CC:      payload.CC,
		}
		if payload.ArtifactRef != "" {
			msg.Attachments = []string{payload.ArtifactRef}
		}

		deliveryID, err := sender.Send(ctx, msg)
		if err != nil {
			return err
		}

		logger.Info().
			Str("job_id", job.ID).
			Str("to", payload.To).
			Str("delivery_id", deliveryID).
			Msg("Scheduled email sent")
		return nil
	}
}
