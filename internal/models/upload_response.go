package models

// UploadResponse is the JSON body returned by the upload endpoints.
type UploadResponse struct {
	Message string `json:"message"`
	FileID  string `json:"fileId,omitempty"`
}

// ErrorResponse is the subset of an error body the client understands.
// The receiver answers with "message"; other servers use "error".
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Text returns the most specific message available.
func (r ErrorResponse) Text() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}
