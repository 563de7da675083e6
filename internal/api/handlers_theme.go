// handlers_theme.go - Theme generator handlers
package api

import (
	"errors"
	"net/http"

	"github.com/devtoolbox/backend/internal/theme"
	"github.com/labstack/echo/v4"
)

// ThemeHandlerImpl implements the ThemeHandler interface
type ThemeHandlerImpl struct {
	presets *theme.Set
}

// NewThemeHandler creates a new theme handler
func NewThemeHandler(presets *theme.Set) ThemeHandler {
	if presets == nil {
		presets = theme.NewSet()
	}
	return &ThemeHandlerImpl{presets: presets}
}

// HandleGetPresets returns every loaded preset
func (h *ThemeHandlerImpl) HandleGetPresets(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"presets": h.presets.All(),
	})
}

// HandleGenerateCSS renders CSS variables for a preset plus overrides.
// Responds with text/css unless the client asks for JSON.
func (h *ThemeHandlerImpl) HandleGenerateCSS(c echo.Context) error {
	var req generateCSSRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	preset, err := h.presets.Get(req.Preset)
	if err != nil {
		return NewNotFoundError("preset", req.Preset)
	}

	css, err := theme.GenerateCSS(preset, req.Overrides)
	if err != nil {
		if errors.Is(err, theme.ErrUnknownVariable) {
			return NewBadRequestError("unknown theme variable", err)
		}
		return NewBadRequestError("invalid theme override", err)
	}

	if c.Request().Header.Get(echo.HeaderAccept) == echo.MIMEApplicationJSON {
		return c.JSON(http.StatusOK, map[string]string{
			"preset": preset.Name,
			"css":    css,
		})
	}
	return c.Blob(http.StatusOK, "text/css; charset=utf-8", []byte(css))
}

// Request/Response types

type generateCSSRequest struct {
	Preset    string          `json:"preset"`
	Overrides theme.Overrides `json:"overrides"`
}
