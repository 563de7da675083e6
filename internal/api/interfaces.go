// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check and tool listing
type HealthHandler interface {
	HandleHealth(c echo.Context) error
	HandleTools(c echo.Context) error
}

// ConvertHandler handles the single-shot image tools
type ConvertHandler interface {
	HandleConvert(c echo.Context) error
	HandleFavicon(c echo.Context) error
	HandleOpenGraph(c echo.Context) error
}

// ThemeHandler handles theme preset operations
type ThemeHandler interface {
	HandleGetPresets(c echo.Context) error
	HandleGenerateCSS(c echo.Context) error
}

// BatchHandler handles batch queue operations
type BatchHandler interface {
	HandleCreateBatch(c echo.Context) error
	HandleListBatches(c echo.Context) error
	HandleGetBatch(c echo.Context) error
	HandleDeleteBatch(c echo.Context) error
	HandleAddEntries(c echo.Context) error
	HandleConvertEntry(c echo.Context) error
	HandleConvertAll(c echo.Context) error
	HandleRemoveEntry(c echo.Context) error
	HandleDownloadEntry(c echo.Context) error
	HandlePreviewEntry(c echo.Context) error
	HandleDownloadAll(c echo.Context) error
}

// EventsHandler streams batch events
type EventsHandler interface {
	HandleBatchEvents(c echo.Context) error
}

// ImageService defines the conversion operations used by handlers
// This allows mocking in tests
type ImageService interface {
	Convert(ctx context.Context, name string, data []byte, opts convert.Options) (*convert.Result, error)
	Favicon(ctx context.Context, data []byte, sizes []int) (*convert.Result, error)
	OpenGraph(ctx context.Context, name string, data []byte, format models.Format) (*convert.Result, error)
}

// PreviewSource returns stored preview bytes by handle
type PreviewSource interface {
	Open(id string) ([]byte, error)
}
