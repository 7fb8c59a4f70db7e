package entity

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Podcast is one generation request tracked through its lifecycle.
// Title, AudioFilename and Duration are set on completion; ErrorMessage on
// failure. A row is never deleted.
type Podcast struct {
	ID            uuid.UUID  `json:"id"`
	URL           string     `json:"url"`
	Title         *string    `json:"title,omitempty"`
	AudioFilename *string    `json:"audio_filename,omitempty"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Duration      *int       `json:"duration,omitempty"` // seconds
	ErrorMessage  *string    `json:"error_message,omitempty"`
	RetryCount    int        `json:"retry_count"`
}

// Terminal reports whether the podcast reached a final state.
func (p *Podcast) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}
