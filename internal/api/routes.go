// routes.go - Route registration helpers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store   storage.Store
	Logger  logging.Logger
	Version string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Upload    UploadHandler
	Files     FileHandler
	WebSocket WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Handlers{
		Health:    NewHealthHandler(deps.Version),
		Upload:    NewUploadHandler(deps.Store, log),
		Files:     NewFileHandler(deps.Store, log),
		WebSocket: NewWebSocketHandler(deps.Store, log),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Upload endpoints used by the client strategies
	apiGroup.POST("/upload-single", handlers.Upload.HandleUploadSingle)
	apiGroup.POST("/upload-chunk", handlers.Upload.HandleUploadChunk)
	apiGroup.GET("/ws/uploads", handlers.WebSocket.HandleWebSocket)

	// Stored files
	fileGroup := apiGroup.Group("/files")
	fileGroup.GET("", handlers.Files.HandleListFiles)
	fileGroup.GET("/msgpack", handlers.Files.HandleListFilesMsgpack)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.GET("/:id/content", handlers.Files.HandleDownloadFile)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
}

// MiddlewareConfig selects the optional middleware installed by SetupMiddleware
type MiddlewareConfig struct {
	EnableCORS     bool
	AllowOrigins   []string
	RequestLogging bool
	BodyLimit      string // e.g. "64M"; empty disables the limit
	ShowErrors     bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = NewErrorHandler(cfg.ShowErrors)

	e.Use(middleware.Recover())

	if cfg.RequestLogging {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Path(), "/health")
			},
		}))
	}

	if cfg.EnableCORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
			Limit: cfg.BodyLimit,
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/api/ws/uploads"
			},
		}))
	}
}
