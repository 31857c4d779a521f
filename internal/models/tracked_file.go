package models

import "time"

// UploadStatus represents the lifecycle state of a tracked file.
type UploadStatus string

const (
	UploadStatusPending   UploadStatus = "pending"
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusSuccess   UploadStatus = "success"
	UploadStatusError     UploadStatus = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusSuccess || s == UploadStatusError
}

// TrackedFile is one admitted file and its upload state.
type TrackedFile struct {
	ID          string       `json:"id"`
	Source      RawFile      `json:"source"`
	Status      UploadStatus `json:"status"`
	Progress    int          `json:"progress"` // 0-100
	Error       string       `json:"error,omitempty"`
	RemoteID    string       `json:"remoteId,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// NewTrackedFile creates a TrackedFile in pending status.
func NewTrackedFile(id string, src RawFile, now time.Time) TrackedFile {
	return TrackedFile{
		ID:        id,
		Source:    src,
		Status:    UploadStatusPending,
		Progress:  0,
		CreatedAt: now,
	}
}
