package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postovik/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func setupMockGmail(ctx context.Context) (*http.ServeMux, *httptest.Server, *GmailSender) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	gmailSrv, _ := gmail.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	driveSrv, _ := drive.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	logger := zerolog.Nop()
	g := &GmailSender{
		service: gmailSrv,
		drive:   &DriveService{service: driveSrv, retry: fastPolicy(0), logger: &logger},
		from:    "robot@example.com",
		retry:   fastPolicy(1),
		logger:  &logger,
	}
	return mux, server, g
}

// decodeRaw reverses the web-safe encoding the Gmail API expects.
func decodeRaw(t *testing.T, raw string) string {
	t.Helper()
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("decode raw message: %v", err)
	}
	return string(decoded)
}

func TestGmailSender_Send(t *testing.T) {
	ctx := context.Background()
	mux, server, g := setupMockGmail(ctx)
	defer server.Close()

	var gotRaw string
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var msg gmail.Message
		_ = json.NewDecoder(r.Body).Decode(&msg)
		gotRaw = msg.Raw
		_ = json.NewEncoder(w).Encode(gmail.Message{Id: "msg-1"})
	})

	id, err := g.Send(ctx, models.OutgoingEmail{
		To:      "user@example.com",
		Subject: "Campaign ready",
		Body:    "2 posts generated",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "msg-1" {
		t.Errorf("expected msg-1, got %q", id)
	}

	mime := decodeRaw(t, gotRaw)
	for _, want := range []string{
		"From: robot@example.com",
		"To: user@example.com",
		"Subject: Campaign ready",
		"MIME-Version: 1.0",
		"multipart/mixed",
		"2 posts generated",
	} {
		if !strings.Contains(mime, want) {
			t.Errorf("message missing %q:\n%s", want, mime)
		}
	}
}

func TestGmailSender_SendWithAttachment(t *testing.T) {
	ctx := context.Background()
	mux, server, g := setupMockGmail(ctx)
	defer server.Close()

	pngContent := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0}, 16)...)
	mux.HandleFunc("/files/art-1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			_, _ = w.Write(pngContent)
			return
		}
		_ = json.NewEncoder(w).Encode(drive.File{Name: "post.png", MimeType: "image/png"})
	})

	var gotRaw string
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var msg gmail.Message
		_ = json.NewDecoder(r.Body).Decode(&msg)
		gotRaw = msg.Raw
		_ = json.NewEncoder(w).Encode(gmail.Message{Id: "msg-2"})
	})

	_, err := g.Send(ctx, models.OutgoingEmail{
		To:          "user@example.com",
		Subject:     "With artifact",
		Body:        "see attachment",
		Attachments: []string{"art-1"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	mime := decodeRaw(t, gotRaw)
	if !strings.Contains(mime, `filename="post.png"`) {
		t.Error("attachment filename missing")
	}
	if !strings.Contains(mime, "Content-Type: image/png") {
		t.Error("sniffed content type missing")
	}
	if !strings.Contains(mime, "Content-Transfer-Encoding: base64") {
		t.Error("transfer encoding header missing")
	}
	if !strings.Contains(mime, encodeBase64Lines(pngContent)) {
		t.Error("encoded attachment content missing")
	}
}

func TestGmailSender_SendCCAndEncodedSubject(t *testing.T) {
	logger := zerolog.Nop()
	g := &GmailSender{from: "robot@example.com", logger: &logger}

	raw, err := g.buildMessage(context.Background(), models.OutgoingEmail{
		To:      "user@example.com",
		CC:      []string{"a@example.com", "b@example.com"},
		Subject: "Готово",
		Body:    "ok",
	})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	mime := decodeRaw(t, raw)
	if !strings.Contains(mime, "Cc: a@example.com, b@example.com") {
		t.Errorf("cc header missing:\n%s", mime)
	}
	// Не-ASCII темы уходят в RFC 2047.
	if !strings.Contains(mime, "Subject: =?UTF-8?q?") {
		t.Errorf("subject must be q-encoded:\n%s", mime)
	}
}

func TestGmailSender_SendServerError(t *testing.T) {
	ctx := context.Background()
	mux, server, g := setupMockGmail(ctx)
	defer server.Close()

	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.Send(ctx, models.OutgoingEmail{To: "user@example.com", Subject: "s", Body: "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	var derr *models.DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DeliveryError, got %T", err)
	}
	if derr.To != "user@example.com" {
		t.Errorf("delivery error to = %q", derr.To)
	}
}

func TestGmailSender_SendAuthExpired(t *testing.T) {
	ctx := context.Background()
	mux, server, g := setupMockGmail(ctx)
	defer server.Close()

	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := g.Send(ctx, models.OutgoingEmail{To: "user@example.com", Subject: "s", Body: "b"})
	if !errors.Is(err, models.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	// Протухшая авторизация не маскируется под ошибку доставки.
	var derr *models.DeliveryError
	if errors.As(err, &derr) {
		t.Error("auth error must not be wrapped in DeliveryError")
	}
}

func TestGmailSender_SendAttachmentMissing(t *testing.T) {
	ctx := context.Background()
	_, server, g := setupMockGmail(ctx)
	defer server.Close()

	_, err := g.Send(ctx, models.OutgoingEmail{
		To:          "user@example.com",
		Subject:     "s",
		Body:        "b",
		Attachments: []string{"missing"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var derr *models.DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DeliveryError, got %T", err)
	}
	if !strings.Contains(err.Error(), "fetch attachment") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestNewGmailSender_RequiresAddress(t *testing.T) {
	logger := zerolog.Nop()
	if _, err := NewGmailSender(context.Background(), nil, nil, "", &logger); err == nil {
		t.Fatal("expected error for empty sender address")
	}
}

func TestEncodeBase64Lines(t *testing.T) {
	content := bytes.Repeat([]byte{0xAB}, 100)
	got := encodeBase64Lines(content)

	lines := strings.Split(got, "\r\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if len(lines[0]) != 76 {
		t.Errorf("first line length = %d, want 76", len(lines[0]))
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(got, "\r\n", ""))
	if err != nil {
		t.Fatalf("round trip decode: %v", err)
	}
	if !bytes.Equal(decoded, content) {
		t.Error("round trip content mismatch")
	}
}

func TestEncodeBase64Lines_Short(t *testing.T) {
	got := encodeBase64Lines([]byte("tiny"))
	if strings.Contains(got, "\r\n") {
		t.Errorf("short content must stay on one line, got %q", got)
	}
}
