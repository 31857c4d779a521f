// handlers_upload.go - Multipart upload handlers for the standard and chunked clients
package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/filedrop/uploader/internal/format"
	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/storage"
)

// chunkIdleTimeout is how long an unfinished chunked upload holds its name
// before a new upload of the same name may start over.
const chunkIdleTimeout = time.Minute

// chunkSequence tracks the next chunk index an in-progress upload accepts.
type chunkSequence struct {
	next     int
	total    int
	lastSeen time.Time
}

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store storage.Store
	log   logging.Logger
	now   func() time.Time

	mu        sync.Mutex
	sequences map[string]*chunkSequence
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, log logging.Logger) UploadHandler {
	return &UploadHandlerImpl{
		store:     store,
		log:       log,
		now:       time.Now,
		sequences: make(map[string]*chunkSequence),
	}
}

// HandleUploadSingle stores the multipart field "file" in one request
func (h *UploadHandlerImpl) HandleUploadSingle(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	info, err := h.saveFormFile(fh)
	if err != nil {
		return err
	}

	h.log.Infof("[Upload] Stored %s as %s (%s)", info.Name, info.ID, format.FormatFileSize(info.Size))
	return c.JSON(http.StatusCreated, models.UploadResponse{
		Message: "File uploaded successfully",
		FileID:  info.ID,
	})
}

func (h *UploadHandlerImpl) saveFormFile(fh *multipart.FileHeader) (*models.FileInfo, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(fh.Filename, src)
	if err != nil {
		return nil, NewInternalError("failed to save file", err)
	}
	return info, nil
}

// HandleUploadChunk stages one chunk of a chunked upload. Chunks are grouped
// by file name and must arrive in order; the last chunk assembles the file.
// A chunk that does not continue the upload in progress for its name is
// rejected with 409.
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	var req uploadChunkRequest
	if err := req.bind(c); err != nil {
		return err
	}

	key := req.file.Filename
	if err := h.claimChunk(key, req.index, req.total); err != nil {
		return err
	}

	// Index 0 starts over; chunks of an abandoned attempt are discarded.
	if req.index == 0 {
		if err := h.store.AbortChunkedUpload(key); err != nil {
			h.releaseSequence(key)
			return NewInternalError("failed to reset upload", err)
		}
	}

	if err := h.saveChunk(key, req); err != nil {
		h.abandonChunks(key)
		return err
	}

	h.log.Debugf("[Upload] %s: chunk %d/%d received", key, req.index+1, req.total)

	if req.index < req.total-1 {
		return c.JSON(http.StatusOK, models.UploadResponse{
			Message: fmt.Sprintf("Chunk %d of %d received", req.index+1, req.total),
		})
	}

	info, err := h.store.CompleteChunkedUpload(key, key, req.total)
	if err != nil {
		h.abandonChunks(key)
		return storeError(err, "assemble file", key)
	}
	h.releaseSequence(key)

	h.log.Infof("[Upload] Assembled %s as %s (%d chunks, %s)", info.Name, info.ID, req.total, format.FormatFileSize(info.Size))
	return c.JSON(http.StatusCreated, models.UploadResponse{
		Message: "File uploaded successfully",
		FileID:  info.ID,
	})
}

func (h *UploadHandlerImpl) saveChunk(key string, req uploadChunkRequest) error {
	src, err := req.file.Open()
	if err != nil {
		return NewInternalError("failed to open chunk", err)
	}
	defer src.Close()

	if err := h.store.SaveChunk(key, req.index, src); err != nil {
		return NewInternalError("failed to save chunk", err)
	}
	return nil
}

// claimChunk reserves index for the upload of key. Index 0 opens a new
// sequence unless another upload of the same name is still active.
func (h *UploadHandlerImpl) claimChunk(key string, index, total int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	seq, active := h.sequences[key]
	if active && now.Sub(seq.lastSeen) > chunkIdleTimeout {
		delete(h.sequences, key)
		active = false
	}

	if index == 0 {
		if active {
			return NewConflictError(fmt.Sprintf("an upload of %s is already in progress", key))
		}
		h.sequences[key] = &chunkSequence{next: 1, total: total, lastSeen: now}
		return nil
	}

	if !active {
		return NewConflictError(fmt.Sprintf("chunk %d of %s arrived without an upload in progress", index, key))
	}
	if seq.total != total || seq.next != index {
		return NewConflictError(fmt.Sprintf("chunk %d of %d for %s is out of sequence, expected chunk %d of %d",
			index, total, key, seq.next, seq.total))
	}
	seq.next++
	seq.lastSeen = now
	return nil
}

func (h *UploadHandlerImpl) releaseSequence(key string) {
	h.mu.Lock()
	delete(h.sequences, key)
	h.mu.Unlock()
}

// abandonChunks drops the sequence and the staged chunks of key.
func (h *UploadHandlerImpl) abandonChunks(key string) {
	h.releaseSequence(key)
	if err := h.store.AbortChunkedUpload(key); err != nil {
		h.log.Warnf("[Upload] %s: failed to discard chunks: %v", key, err)
	}
}

// Request types

type uploadChunkRequest struct {
	file  *multipart.FileHeader
	index int
	total int
}

func (r *uploadChunkRequest) bind(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if fh.Filename == "" {
		return NewValidationError("file")
	}
	r.file = fh

	if r.index, err = strconv.Atoi(c.FormValue("currentChunkIndex")); err != nil {
		return NewValidationError("currentChunkIndex")
	}
	if r.total, err = strconv.Atoi(c.FormValue("totalChunks")); err != nil || r.total <= 0 {
		return NewValidationError("totalChunks")
	}
	if r.index < 0 || r.index >= r.total {
		return NewBadRequestError(fmt.Sprintf("chunk index %d out of range for %d chunks", r.index, r.total), nil)
	}
	return nil
}
