// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import "github.com/labstack/echo/v4"

// UploadHandler receives files from upload clients
type UploadHandler interface {
	HandleUploadSingle(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
}

// FileHandler exposes stored files
type FileHandler interface {
	HandleListFiles(c echo.Context) error
	HandleListFilesMsgpack(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDownloadFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// WebSocketHandler serves the websocket upload protocol
type WebSocketHandler interface {
	HandleWebSocket(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
