package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"postovik/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
)

// Credentials wraps one service-account key file and hands out authorized
// HTTP clients per scope set. Services never touch the key material
// themselves.
type Credentials struct {
	credentialsJSON []byte
	clientEmail     string
}

func NewCredentials(credentialsFile string) (*Credentials, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(credentialsJSON, &creds); err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	return &Credentials{
		credentialsJSON: credentialsJSON,
		clientEmail:     creds.ClientEmail,
	}, nil
}

// ClientEmail возвращает email сервисного аккаунта
func (c *Credentials) ClientEmail() string {
	return c.clientEmail
}

// Client builds an authorized HTTP client for the given scopes. A non-empty
// subject impersonates that mailbox (domain-wide delegation), which Gmail
// sending requires.
func (c *Credentials) Client(ctx context.Context, subject string, scopes ...string) (*http.Client, error) {
	config, err := google.JWTConfigFromJSON(c.credentialsJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}
	config.Subject = subject

	return config.Client(ctx), nil
}

// wrapAuthError converts permanently-invalid credential failures into
// ErrAuthExpired so callers can surface a re-authorization signal instead
// of retrying. Other errors pass through unchanged.
func wrapAuthError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", models.ErrAuthExpired, err)
	}

	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		return fmt.Errorf("%w: %v", models.ErrAuthExpired, err)
	}

	if strings.Contains(err.Error(), "invalid_grant") {
		return fmt.Errorf("%w: %v", models.ErrAuthExpired, err)
	}

	return err
}

// isRetryable reports whether the API error is worth another attempt:
// quota exhaustion and server-side failures, never auth errors.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrAuthExpired) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return false
}
