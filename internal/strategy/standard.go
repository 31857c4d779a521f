package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
)

var errResponseReceived = errors.New("response received")

// Standard sends the whole file as one multipart request.
type Standard struct {
	endpoint string
	client   *http.Client
	log      logging.Logger
}

// NewStandard creates a Standard strategy posting to endpoint.
func NewStandard(endpoint string, client *http.Client, log logging.Logger) *Standard {
	return &Standard{
		endpoint: endpoint,
		client:   orDefaultClient(client),
		log:      orDiscard(log),
	}
}

// Endpoint returns the URL files are posted to.
func (s *Standard) Endpoint() string { return s.endpoint }

// Upload implements Strategy.
func (s *Standard) Upload(ctx context.Context, file models.RawFile, events chan<- Event) {
	fileID, err := s.send(ctx, file, events)
	if err != nil {
		s.log.Debugf("[Standard] %s failed: %v", file.Name, err)
		events <- Failed(err)
		return
	}
	s.log.Debugf("[Standard] %s uploaded as %s", file.Name, fileID)
	events <- Succeeded(fileID)
}

func (s *Standard) send(ctx context.Context, file models.RawFile, events chan<- Event) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	// The body is streamed from a separate goroutine so progress follows
	// what the transport actually consumes.
	written := make(chan struct{})
	go func() {
		defer close(written)
		src := newProgressReader(file.Reader(), file.Size, func(pct float64) {
			events <- Progress(pct)
		})
		err := writeFilePart(mw, "file", file.Name, file.Type, src)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		<-written
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)

	// Stop the writer if the server answered before reading everything, and
	// make sure no progress event can follow the terminal one.
	pr.CloseWithError(errResponseReceived)
	<-written

	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return "", transportError(ctx, err)
	}

	if !successful(resp.StatusCode) {
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("upload failed with status %d", resp.StatusCode),
		}
	}

	out, err := decodeUploadResponse(body)
	if err != nil {
		return "", err
	}
	if out.FileID == "" {
		return file.Name, nil
	}
	return out.FileID, nil
}
