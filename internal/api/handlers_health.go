// handlers_health.go - Health check and tool registry handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Tool describes one entry of the toolbox sidebar
type Tool struct {
	Title       string `json:"title"`
	Href        string `json:"href"`
	Endpoint    string `json:"endpoint,omitempty"`
	Description string `json:"description"`
}

// Tools lists the tools served by this backend
var Tools = []Tool{
	{
		Title:       "Image Converter",
		Href:        "/tools/image-converter",
		Endpoint:    "/api/image/converter",
		Description: "Convert images to WebP, AVIF, PNG, JPEG and more, one file or a whole batch",
	},
	{
		Title:       "ICO Generator",
		Href:        "/tools/ico-gen",
		Endpoint:    "/api/tools/img-to-ico",
		Description: "Pack several square renditions of an image into one favicon.ico",
	},
	{
		Title:       "shadcn Theme Gen",
		Href:        "/tools/theme-generator",
		Endpoint:    "/api/tools/theme/css",
		Description: "Generate shadcn/ui CSS variables for light and dark mode",
	},
	{
		Title:       "Open Graph Gen",
		Href:        "/tools/og-thumbnail-generator",
		Endpoint:    "/api/tools/og-image",
		Description: "Render a 1200x630 social preview card from an image",
	},
}

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	batches BatchCounter
}

// BatchCounter reports how many batches are live
type BatchCounter interface {
	Len() int
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, batches BatchCounter) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		batches: batches,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.batches != nil {
		resp["batches"] = h.batches.Len()
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleTools returns the tool registry
func (h *HealthHandlerImpl) HandleTools(c echo.Context) error {
	return c.JSON(http.StatusOK, Tools)
}
