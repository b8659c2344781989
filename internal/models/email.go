package models

import "time"

// OutgoingEmail is one message handed to the email sender. Attachments
// are Drive file ids resolved to content at send time.
type OutgoingEmail struct {
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	CC          []string `json:"cc,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// RemoteFile is one entry of a Drive folder listing.
type RemoteFile struct {
	ID          string
	Name        string
	MimeType    string
	CreatedTime time.Time
}
