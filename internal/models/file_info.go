package models

import "time"

// FileInfo represents metadata about a file stored by the receiver.
type FileInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	Name       string    `json:"name" msgpack:"name"`
	Size       int64     `json:"size" msgpack:"size"`
	UploadedAt time.Time `json:"uploadedAt" msgpack:"uploadedAt"`
	Status     string    `json:"status" msgpack:"status"` // "uploaded"
}

// FileListResponse is the body of the file listing endpoints.
type FileListResponse struct {
	Files []*FileInfo `json:"files" msgpack:"files"`
}
