package models

import "time"

// JobStatus is the lifecycle state of a conversion job.
// Transitions are monotonic: pending -> processing -> {completed, failed}.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Tier selects the conversion path.
type Tier string

const (
	// TierStandard converts with the local converter registry or the
	// markitdown CLI for binary formats.
	TierStandard Tier = "standard"
	// TierPro converts through the external document-AI service.
	TierPro Tier = "pro"
)

// ConversionJob tracks one document-conversion request and its outcome.
// Exactly one of UserID / SessionID is set (enforced by the dispatcher
// and a CHECK constraint on the table).
type ConversionJob struct {
	ID               string     `json:"id"`
	UserID           *string    `json:"user_id,omitempty"`
	SessionID        *string    `json:"session_id,omitempty"`
	OriginalFilename string     `json:"original_filename"`
	FileSize         int64      `json:"file_size"`
	FileType         string     `json:"file_type"` // detected extension, e.g. ".pdf"
	ObjectKey        string     `json:"object_key"`
	Tier             Tier       `json:"conversion_type"`
	Status           JobStatus  `json:"status"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Markdown         string     `json:"-"`
	MarkdownLength   int        `json:"markdown_length,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ProcessingTime   float64    `json:"processing_time,omitempty"` // seconds
}

// Owner returns the identity the job belongs to, for logging.
func (j *ConversionJob) Owner() string {
	if j.UserID != nil {
		return "user:" + *j.UserID
	}
	if j.SessionID != nil {
		return "session:" + *j.SessionID
	}
	return "unknown"
}
