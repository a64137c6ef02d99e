package dto

import (
	"io"
	"time"

	"github.com/s22001503-hash/ouslpms-monorepo/internal/models"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/policy"
)

// UploadInput is a document handed to the print service.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
	Copies      int
	Color       bool
}

// PrintJobResponse decorates a print request with its duplicate warning.
type PrintJobResponse struct {
	models.PrintRequest
	DuplicateWarning *policy.DuplicateWarning `json:"duplicateWarning,omitempty"`
}

// ShareResponse carries a signed download link issued instead of printing.
type ShareResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
