// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"context"

	"github.com/devtoolbox/backend/internal/queue"
	"github.com/devtoolbox/backend/internal/theme"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Images       ImageService
	Registry     *queue.Registry
	Previews     PreviewSource
	Themes       *theme.Set
	Hub          *EventHub
	RunCtx       context.Context
	MaxUpload    int64
	AllowedTypes []string
	FaviconSizes []int
	Version      string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Convert ConvertHandler
	Theme   ThemeHandler
	Batch   BatchHandler
	Events  EventsHandler
}

// NewHandlers creates all handler instances. When no hub is supplied one is
// created and installed as the registry's event sink. The hub always
// disconnects subscribers of batches the registry closes.
func NewHandlers(deps *Dependencies) *Handlers {
	hub := deps.Hub
	if hub == nil {
		hub = NewEventHub(deps.Registry, 0)
		deps.Registry.SetNotifierFactory(hub.Notifier)
	}
	deps.Registry.SetCloseHook(hub.CloseBatch)
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Registry),
		Convert: NewConvertHandler(deps.Images, deps.MaxUpload, deps.FaviconSizes),
		Theme:   NewThemeHandler(deps.Themes),
		Batch:   NewBatchHandler(deps.RunCtx, deps.Registry, deps.Previews, deps.MaxUpload, deps.AllowedTypes),
		Events:  hub,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Health check
	api.GET("/health", handlers.Health.HandleHealth)
	api.GET("/tools", handlers.Health.HandleTools)

	// Single-shot tools
	api.POST("/image/converter", handlers.Convert.HandleConvert)
	toolsGroup := api.Group("/tools")
	toolsGroup.POST("/img-to-ico", handlers.Convert.HandleFavicon)
	toolsGroup.POST("/og-image", handlers.Convert.HandleOpenGraph)
	toolsGroup.GET("/theme", handlers.Theme.HandleGetPresets)
	toolsGroup.POST("/theme/css", handlers.Theme.HandleGenerateCSS)

	// Batch queue routes
	batchGroup := api.Group("/batches")
	batchGroup.POST("", handlers.Batch.HandleCreateBatch)
	batchGroup.GET("", handlers.Batch.HandleListBatches)
	batchGroup.GET("/:id", handlers.Batch.HandleGetBatch)
	batchGroup.DELETE("/:id", handlers.Batch.HandleDeleteBatch)
	batchGroup.POST("/:id/entries", handlers.Batch.HandleAddEntries)
	batchGroup.POST("/:id/convert", handlers.Batch.HandleConvertAll)
	batchGroup.GET("/:id/download", handlers.Batch.HandleDownloadAll)
	batchGroup.POST("/:id/entries/:entryId/convert", handlers.Batch.HandleConvertEntry)
	batchGroup.DELETE("/:id/entries/:entryId", handlers.Batch.HandleRemoveEntry)
	batchGroup.GET("/:id/entries/:entryId/download", handlers.Batch.HandleDownloadEntry)
	batchGroup.GET("/:id/entries/:entryId/preview", handlers.Batch.HandlePreviewEntry)
}

// RegisterWebSocketRoutes registers WebSocket routes. They are kept apart so
// the server can exempt them from timeout and gzip middleware.
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/batches/:id/events", handlers.Events.HandleBatchEvents)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
