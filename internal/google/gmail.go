package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"postovik/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender delivers rendered artifacts by email. Attachments are Drive
// file ids fetched at send time so the message always carries the final
// content.
type GmailSender struct {
	service *gmail.Service
	drive   *DriveService
	from    string
	retry   RetryPolicy
	logger  *zerolog.Logger
}

func NewGmailSender(ctx context.Context, creds *Credentials, driveService *DriveService, senderAddress string, logger *zerolog.Logger) (*GmailSender, error) {
	if senderAddress == "" {
		return nil, fmt.Errorf("gmail sender address is required")
	}

	client, err := creds.Client(ctx, senderAddress, gmail.GmailSendScope)
	if err != nil {
		return nil, err
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	return &GmailSender{
		service: srv,
		drive:   driveService,
		from:    senderAddress,
		retry:   DefaultRetryPolicy,
		logger:  logger,
	}, nil
}

// Send builds an RFC 2822 message and hands it to the Gmail API. The
// returned id is the provider's message id.
func (g *GmailSender) Send(ctx context.Context, msg models.OutgoingEmail) (string, error) {
	raw, err := g.buildMessage(ctx, msg)
	if err != nil {
		return "", &models.DeliveryError{To: msg.To, Err: err}
	}

	var sent *gmail.Message
	err = withRetry(ctx, g.logger, g.retry, "gmail.send", func() error {
		var err error
		sent, err = g.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrAuthExpired) {
			return "", err
		}
		return "", &models.DeliveryError{To: msg.To, Err: err}
	}

	g.logger.Info().Str("to", msg.To).Str("message_id", sent.Id).Msg("email sent")
	return sent.Id, nil
}

func (g *GmailSender) buildMessage(ctx context.Context, msg models.OutgoingEmail) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	headers := []string{
		fmt.Sprintf("From: %s", g.from),
		fmt.Sprintf("To: %s", msg.To),
	}
	if len(msg.CC) > 0 {
		headers = append(headers, fmt.Sprintf("Cc: %s", strings.Join(msg.CC, ", ")))
	}
	headers = append(headers,
		fmt.Sprintf("Subject: %s", mime.QEncoding.Encode("UTF-8", msg.Subject)),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/mixed; boundary=%s", writer.Boundary()),
	)
	buf.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return "", err
	}
	if _, err := textPart.Write([]byte(msg.Body)); err != nil {
		return "", err
	}

	for _, fileID := range msg.Attachments {
		content, name, err := g.drive.Download(ctx, fileID)
		if err != nil {
			return "", fmt.Errorf("fetch attachment %s: %w", fileID, err)
		}

		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {http.DetectContentType(content)},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return "", err
		}
		if _, err := part.Write([]byte(encodeBase64Lines(content))); err != nil {
			return "", err
		}
	}

	if err := writer.Close(); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// encodeBase64Lines wraps base64 output at 76 characters per RFC 2045.
func encodeBase64Lines(content []byte) string {
	encoded := base64.StdEncoding.EncodeToString(content)
	var sb strings.Builder
	for len(encoded) > 76 {
		sb.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	sb.WriteString(encoded)
	return sb.String()
}
