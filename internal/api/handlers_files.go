// handlers_files.go - Listing and management of stored files
package api

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	// MIMEApplicationMsgpack is the content type of msgpack responses
	MIMEApplicationMsgpack = "application/msgpack"
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store storage.Store
	log   logging.Logger
}

// NewFileHandler creates a new file handler instance
func NewFileHandler(store storage.Store, log logging.Logger) FileHandler {
	return &FileHandlerImpl{
		store: store,
		log:   log,
	}
}

func (h *FileHandlerImpl) list(c echo.Context) (*models.FileListResponse, error) {
	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, NewValidationError("limit")
		}
		limit = min(n, maxListLimit)
	}

	files, err := h.store.List(limit)
	if err != nil {
		return nil, NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return &models.FileListResponse{Files: files}, nil
}

// HandleListFiles returns stored files as JSON, newest first
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	resp, err := h.list(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleListFilesMsgpack returns the same listing encoded as msgpack
func (h *FileHandlerImpl) HandleListFilesMsgpack(c echo.Context) error {
	resp, err := h.list(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return storeError(err, "get file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDownloadFile streams the stored content of a file
func (h *FileHandlerImpl) HandleDownloadFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return storeError(err, "get file", id)
	}

	rc, err := h.store.Open(id)
	if err != nil {
		return storeError(err, "open file", id)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}

// HandleDeleteFile deletes a stored file
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return storeError(err, "delete file", id)
	}

	h.log.Infof("[Files] Deleted %s", id)
	return c.NoContent(http.StatusNoContent)
}
