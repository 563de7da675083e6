// handlers_convert.go - Single-shot image tool handlers
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// ConvertHandlerImpl implements the ConvertHandler interface
type ConvertHandlerImpl struct {
	images       ImageService
	maxUpload    int64
	faviconSizes []int
}

// NewConvertHandler creates a new conversion handler. maxUpload <= 0 means
// no per-file limit beyond the server body limit.
func NewConvertHandler(images ImageService, maxUpload int64, faviconSizes []int) ConvertHandler {
	if len(faviconSizes) == 0 {
		faviconSizes = convert.DefaultFaviconSizes
	}
	return &ConvertHandlerImpl{
		images:       images,
		maxUpload:    maxUpload,
		faviconSizes: faviconSizes,
	}
}

// HandleConvert converts the uploaded "file" to the requested format
func (h *ConvertHandlerImpl) HandleConvert(c echo.Context) error {
	upload, err := readFormFile(c, "file", h.maxUpload)
	if err != nil {
		return err
	}

	req := convertRequest{
		Format:  c.FormValue("format"),
		Quality: c.FormValue("quality"),
		Width:   c.FormValue("width"),
		Height:  c.FormValue("height"),
		Sizes:   c.FormValue("sizes"),
	}
	opts, err := req.options()
	if err != nil {
		return err
	}

	res, err := h.images.Convert(c.Request().Context(), upload.Name, upload.Data, opts)
	if err != nil {
		fmt.Printf("[Convert] Error converting %s: %v\n", upload.Name, err)
		return FromDomainError("Error converting image", err)
	}
	return sendResult(c, res)
}

// HandleFavicon packs the uploaded "image" into a multi-size favicon.ico
func (h *ConvertHandlerImpl) HandleFavicon(c echo.Context) error {
	upload, err := readFormFile(c, "image", h.maxUpload)
	if err != nil {
		return err
	}

	sizes := h.faviconSizes
	if raw := c.FormValue("sizes"); raw != "" {
		if sizes, err = parseSizes(raw); err != nil {
			return err
		}
	}

	res, err := h.images.Favicon(c.Request().Context(), upload.Data, sizes)
	if err != nil {
		fmt.Printf("[Favicon] Error during ICO generation for %s: %v\n", upload.Name, err)
		return FromDomainError("ICO generation failed", err)
	}
	return sendResult(c, res)
}

// HandleOpenGraph renders a 1200x630 card from the uploaded "file"
func (h *ConvertHandlerImpl) HandleOpenGraph(c echo.Context) error {
	upload, err := readFormFile(c, "file", h.maxUpload)
	if err != nil {
		return err
	}

	var format models.Format
	if raw := c.FormValue("format"); raw != "" {
		if format, err = models.ParseFormat(raw); err != nil {
			return NewBadRequestError("invalid format", err)
		}
	}

	res, err := h.images.OpenGraph(c.Request().Context(), upload.Name, upload.Data, format)
	if err != nil {
		fmt.Printf("[OpenGraph] Error rendering %s: %v\n", upload.Name, err)
		return FromDomainError("Open Graph image generation failed", err)
	}
	return sendResult(c, res)
}

// Request/Response types

type convertRequest struct {
	Format  string
	Quality string
	Width   string
	Height  string
	Sizes   string
}

func (r *convertRequest) options() (convert.Options, error) {
	var opts convert.Options
	if r.Format != "" {
		f, err := models.ParseFormat(r.Format)
		if err != nil {
			return opts, NewBadRequestError("invalid format", err)
		}
		opts.Format = f
	}

	ints := []struct {
		field string
		raw   string
		dst   *int
		max   int
	}{
		{"quality", r.Quality, &opts.Quality, 100},
		{"width", r.Width, &opts.Width, 16384},
		{"height", r.Height, &opts.Height, 16384},
	}
	for _, f := range ints {
		if f.raw == "" {
			continue
		}
		n, err := strconv.Atoi(f.raw)
		if err != nil || n < 1 || n > f.max {
			return opts, NewValidationError(f.field)
		}
		*f.dst = n
	}

	if r.Sizes != "" {
		sizes, err := parseSizes(r.Sizes)
		if err != nil {
			return opts, err
		}
		opts.Sizes = sizes
	}
	return opts, nil
}

// parseSizes accepts a JSON array ("[16,32]") or a comma list ("16,32").
func parseSizes(raw string) ([]int, error) {
	var sizes []int
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		if err := json.Unmarshal([]byte(raw), &sizes); err != nil {
			return nil, NewBadRequestError("invalid sizes", err)
		}
	} else {
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, NewBadRequestError("invalid sizes", err)
			}
			sizes = append(sizes, n)
		}
	}
	if len(sizes) == 0 {
		return nil, NewValidationError("sizes")
	}
	return sizes, nil
}

// readFormFile loads one multipart file into memory.
func readFormFile(c echo.Context, field string, limit int64) (*models.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, NewBadRequestError("No file provided", err)
	}
	return readUpload(fh, limit)
}

func readUpload(fh *multipart.FileHeader, limit int64) (*models.Upload, error) {
	if limit > 0 && fh.Size > limit {
		return nil, &APIError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("%s exceeds the %d byte upload limit", fh.Filename, limit),
		}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, NewBadRequestError("failed to open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, NewBadRequestError("failed to read uploaded file", err)
	}
	return &models.Upload{
		Name:        fh.Filename,
		ContentType: uploadContentType(fh),
		Data:        data,
	}, nil
}

func uploadContentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return ct
}

func attachmentHeader(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func sendResult(c echo.Context, res *convert.Result) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, attachmentHeader(res.Filename))
	return c.Blob(http.StatusOK, res.ContentType, res.Data)
}
