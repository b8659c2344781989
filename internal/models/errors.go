package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExpired means the Google credential is invalid and cannot be
	// refreshed. Never retried automatically; the caller has to re-authorize.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrJobNotFound is returned for lookups and cancels of unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrWatchNotConfigured is returned by status queries before the first
	// folder-watch configuration.
	ErrWatchNotConfigured = errors.New("folder watch is not configured")

	// ErrMissedWindow marks a one-shot job whose fire time plus grace period
	// elapsed before the scheduler could run it.
	ErrMissedWindow = errors.New("missed window")
)

// ConfigError rejects a malformed job payload at schedule/configure time.
// Jobs with a ConfigError never enter the registry.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// RenderError is a row-level failure of template substitution or export.
// The batch continues past it.
type RenderError struct {
	TemplateID string
	Err        error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %s: %v", e.TemplateID, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DeliveryError is a batch-level email failure. Already rendered artifacts
// stay in the result, so the caller can tell "generated but not sent" from
// "nothing generated".
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
