package upload

import "github.com/filedrop/uploader/internal/models"

// Stats counts tracked files by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Success   int `json:"success"`
	Error     int `json:"error"`
}

// Active is the number of files not yet in a final state.
func (s Stats) Active() int {
	return s.Pending + s.Uploading
}

// StatsOf counts files by status.
func StatsOf(files []models.TrackedFile) Stats {
	s := Stats{Total: len(files)}
	for _, f := range files {
		switch f.Status {
		case models.UploadStatusPending:
			s.Pending++
		case models.UploadStatusUploading:
			s.Uploading++
		case models.UploadStatusSuccess:
			s.Success++
		case models.UploadStatusError:
			s.Error++
		}
	}
	return s
}
