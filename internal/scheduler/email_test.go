package scheduler

import (
	"context"
	"errors"
	"testing"

	"postovik/internal/models"

	"github.com/rs/zerolog"
)

type fakeSender struct {
	sent []models.OutgoingEmail
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg models.OutgoingEmail) (string, error) {
	f.sent = append(f.sent, msg)
	return "delivery-1", f.err
}

func TestEmailHandler(t *testing.T) {
	sender := &fakeSender{}
	logger := zerolog.Nop()
	handler := NewEmailHandler(sender, &logger)

	job := &models.Job{
		ID:      "job-1",
		Kind:    models.KindOneShotEmail,
		Payload: `{"to":"a@x.com","subject":"hi","body":"text","cc":["b@x.com"],"artifact_ref":"file-9"}`,
	}

	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "a@x.com" || msg.Subject != "hi" || msg.Body != "text" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if len(msg.CC) != 1 || msg.CC[0] != "b@x.com" {
		t.Errorf("expected cc carried over, got %v", msg.CC)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0] != "file-9" {
		t.Errorf("expected artifact attached, got %v", msg.Attachments)
	}
}

func TestEmailHandler_NoArtifact(t *testing.T) {
	sender := &fakeSender{}
	logger := zerolog.Nop()
	handler := NewEmailHandler(sender, &logger)

	job := &models.Job{ID: "job-1", Payload: `{"to":"a@x.com"}`}
	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(sender.sent[0].Attachments) != 0 {
		t.Errorf("expected no attachments, got %v", sender.sent[0].Attachments)
	}
}

func TestEmailHandler_Errors(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("BrokenPayload", func(t *testing.T) {
		handler := NewEmailHandler(&fakeSender{}, &logger)
		err := handler(context.Background(), &models.Job{ID: "j", Payload: "{broken"})
		if err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("SendFailure", func(t *testing.T) {
		sendErr := errors.New("gmail down")
		handler := NewEmailHandler(&fakeSender{err: sendErr}, &logger)
		err := handler(context.Background(), &models.Job{ID: "j", Payload: `{"to":"a@x.com"}`})
		if !errors.Is(err, sendErr) {
			t.Errorf("expected send error, got %v", err)
		}
	})
}
