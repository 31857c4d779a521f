package strategy

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
)

// Chunked splits a file into fixed-size byte ranges and posts them one after
// another. The first failing chunk aborts the upload; there is no resume.
type Chunked struct {
	endpoint  string
	chunkSize int64
	client    *http.Client
	log       logging.Logger
}

// NewChunked creates a Chunked strategy. A non-positive chunkSize selects
// DefaultChunkSize.
func NewChunked(endpoint string, chunkSize int64, client *http.Client, log logging.Logger) *Chunked {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunked{
		endpoint:  endpoint,
		chunkSize: chunkSize,
		client:    orDefaultClient(client),
		log:       orDiscard(log),
	}
}

// Endpoint returns the URL chunks are posted to.
func (c *Chunked) Endpoint() string { return c.endpoint }

// ChunkSize returns the size of every chunk but the last.
func (c *Chunked) ChunkSize() int64 { return c.chunkSize }

// Upload implements Strategy.
func (c *Chunked) Upload(ctx context.Context, file models.RawFile, events chan<- Event) {
	total := TotalChunks(file.Size, c.chunkSize)

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			events <- Failed(ErrAborted)
			return
		}

		start := int64(i) * c.chunkSize
		n := min(c.chunkSize, file.Size-start)

		if err := c.uploadChunk(ctx, file, i, total, start, n); err != nil {
			c.log.Debugf("[Chunked] %s: chunk %d/%d failed: %v", file.Name, i+1, total, err)
			events <- Failed(err)
			return
		}

		c.log.Debugf("[Chunked] %s: chunk %d/%d sent", file.Name, i+1, total)
		events <- Progress(float64(i+1) / float64(total) * 100)
	}

	events <- Succeeded(file.Name)
}

func (c *Chunked) uploadChunk(ctx context.Context, file models.RawFile, index, total int, start, n int64) error {
	var body bytes.Buffer
	body.Grow(int(n) + 512)

	mw := multipart.NewWriter(&body)
	if err := writeFilePart(mw, "file", file.Name, file.Type, file.Section(start, n)); err != nil {
		return fmt.Errorf("reading chunk %d: %w", index, err)
	}
	if err := mw.WriteField("currentChunkIndex", strconv.Itoa(index)); err != nil {
		return err
	}
	if err := mw.WriteField("totalChunks", strconv.Itoa(total)); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return transportError(ctx, err)
	}

	if !successful(resp.StatusCode) {
		msg := errorText(raw)
		if msg == "" {
			msg = fmt.Sprintf("chunk upload failed with status %d", resp.StatusCode)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	_, err = decodeUploadResponse(raw)
	return err
}
