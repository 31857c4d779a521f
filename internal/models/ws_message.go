package models

import "encoding/json"

// WebSocket message types for the upload protocol
const (
	// Client -> Server messages
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeConnected  = "connected"
	MsgTypeAck        = "ack"
	MsgTypeProgress   = "progress"
	MsgTypeComplete   = "complete"
	MsgTypeError      = "error"
	MsgTypeProcessing = "processing"
	MsgTypePong       = "pong"
)

// WSMessage is the envelope of every websocket frame.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// UploadInitPayload opens an upload session.
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	TotalSize   int64  `json:"totalSize"`
}

// UploadChunkPayload carries one chunk.
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64 encoded chunk
	IsLast     bool   `json:"isLast,omitempty"`
}

// UploadCompletePayload asks the server to assemble a session.
type UploadCompletePayload struct {
	UploadID     string `json:"uploadId"`
	FileName     string `json:"fileName"`
	TotalChunks  int    `json:"totalChunks"`
	OriginalSize int64  `json:"originalSize"`
}

// WSProgressResponse reports server-side progress.
type WSProgressResponse struct {
	Type     string  `json:"type"`
	UploadID string  `json:"uploadId,omitempty"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// WSCompleteResponse reports a stored file.
type WSCompleteResponse struct {
	Type     string    `json:"type"`
	UploadID string    `json:"uploadId,omitempty"`
	FileInfo *FileInfo `json:"fileInfo,omitempty"`
}

// WSErrorResponse reports a failed request.
type WSErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
