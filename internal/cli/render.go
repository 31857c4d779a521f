package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/filedrop/uploader/internal/format"
	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/upload"
)

// progressStep is the smallest progress change worth a new line.
const progressStep = 10

// statusText is the one-word state shown next to a file.
func statusText(f models.TrackedFile) string {
	switch f.Status {
	case models.UploadStatusSuccess:
		return "Completed"
	case models.UploadStatusError:
		if f.Error != "" {
			return f.Error
		}
		return "Failed"
	case models.UploadStatusUploading:
		return fmt.Sprintf("%d%%", f.Progress)
	default:
		return "Pending"
	}
}

// renderProgress prints a line per file whenever its state changes or its
// progress advances by progressStep. It returns when the subscription of
// the coordinator in ctx ends.
func renderProgress(ctx context.Context, w io.Writer) {
	updates, unsubscribe := upload.FromContext(ctx).Subscribe()
	defer unsubscribe()

	type seen struct {
		status   models.UploadStatus
		progress int
	}
	last := make(map[string]seen)

	for {
		var files []models.TrackedFile
		var ok bool
		select {
		case files, ok = <-updates:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		for _, f := range files {
			prev, known := last[f.ID]
			if known && prev.status == f.Status && f.Progress-prev.progress < progressStep {
				continue
			}
			last[f.ID] = seen{status: f.Status, progress: f.Progress}
			fmt.Fprintf(w, "%-30s %10s  %s\n", f.Source.Name, format.FormatFileSize(f.Source.Size), statusText(f))
		}
	}
}

// summaryLine renders "2 completed • 1 failed • 1 uploading".
func summaryLine(s upload.Stats) string {
	var parts []string
	if s.Success > 0 {
		parts = append(parts, fmt.Sprintf("%d completed", s.Success))
	}
	if s.Error > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Error))
	}
	if s.Uploading > 0 {
		parts = append(parts, fmt.Sprintf("%d uploading", s.Uploading))
	}
	return strings.Join(parts, " • ")
}

// renderSummary prints the final file list.
func renderSummary(w io.Writer, files []models.TrackedFile) {
	if len(files) == 0 {
		return
	}

	fmt.Fprintf(w, "\nFiles (%d)\n", len(files))
	if line := summaryLine(upload.StatsOf(files)); line != "" {
		fmt.Fprintln(w, line)
	}
	for _, f := range files {
		detail := statusText(f)
		if f.Status == models.UploadStatusSuccess {
			detail = "Completed -> " + f.RemoteID
			if f.CompletedAt != nil {
				detail += " at " + format.FormatDate(*f.CompletedAt)
			}
		}
		fmt.Fprintf(w, "  %-30s %10s  %s\n", f.Source.Name, format.FormatFileSize(f.Source.Size), detail)
	}
}
