// handlers_batch.go - Batch queue handlers
package api

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/devtoolbox/backend/internal/queue"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEApplicationMsgpack is the content type of msgpack responses
const MIMEApplicationMsgpack = "application/msgpack"

// ArchiveFilename is the download name of the converted-files archive
const ArchiveFilename = "converted-images.zip"

// BatchHandlerImpl implements the BatchHandler interface
type BatchHandlerImpl struct {
	registry  *queue.Registry
	previews  PreviewSource
	maxUpload int64
	allowed   map[string]bool
	runCtx    context.Context
}

// NewBatchHandler creates a new batch handler. runCtx bounds background
// convert-all runs; allowedTypes empty accepts any upload.
func NewBatchHandler(runCtx context.Context, registry *queue.Registry, previews PreviewSource, maxUpload int64, allowedTypes []string) BatchHandler {
	if runCtx == nil {
		runCtx = context.Background()
	}
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(t)] = true
	}
	return &BatchHandlerImpl{
		registry:  registry,
		previews:  previews,
		maxUpload: maxUpload,
		allowed:   allowed,
		runCtx:    runCtx,
	}
}

// HandleCreateBatch creates an empty batch with optional settings
func (h *BatchHandlerImpl) HandleCreateBatch(c echo.Context) error {
	var req createBatchRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}
	settings, err := req.settings()
	if err != nil {
		return err
	}

	batch, err := h.registry.Create(settings)
	if err != nil {
		return FromDomainError("failed to create batch", err)
	}
	return respond(c, http.StatusCreated, newBatchView(batch))
}

// HandleListBatches returns every live batch
func (h *BatchHandlerImpl) HandleListBatches(c echo.Context) error {
	return respond(c, http.StatusOK, map[string]interface{}{
		"batches": h.registry.List(),
		"max":     h.registry.MaxBatches(),
	})
}

// HandleGetBatch returns a batch with its ordered entries
func (h *BatchHandlerImpl) HandleGetBatch(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, newBatchView(batch))
}

// HandleDeleteBatch tears a batch down and releases its previews
func (h *BatchHandlerImpl) HandleDeleteBatch(c echo.Context) error {
	id := c.Param("id")
	if !h.registry.Delete(id) {
		return NewNotFoundError("batch", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleAddEntries enqueues the multipart "files" of the request. The whole
// request is rejected before any entry is created if one file is unacceptable.
func (h *BatchHandlerImpl) HandleAddEntries(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		return NewValidationError("files")
	}

	uploads := make([]models.Upload, 0, len(headers))
	for _, fh := range headers {
		upload, err := readUpload(fh, h.maxUpload)
		if err != nil {
			return err
		}
		if !h.accepts(upload.ContentType) {
			return NewUnsupportedMediaTypeError(upload.Name, upload.ContentType)
		}
		uploads = append(uploads, *upload)
	}

	entries, err := batch.Enqueue(uploads)
	if err != nil {
		return FromDomainError("failed to enqueue files", err)
	}
	fmt.Printf("[Batch %s] Enqueued %d file(s)\n", shortID(batch.ID), len(entries))
	return respond(c, http.StatusCreated, map[string]interface{}{
		"entries": entries,
	})
}

// HandleConvertEntry converts one entry and returns its new state
func (h *BatchHandlerImpl) HandleConvertEntry(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}
	entryID := c.Param("entryId")

	if err := batch.ConvertOne(c.Request().Context(), entryID); err != nil {
		switch {
		case errors.Is(err, queue.ErrNotFound):
			return NewNotFoundError("entry", entryID)
		case errors.Is(err, queue.ErrBusy):
			return NewConflictError(fmt.Sprintf("entry %s is already converting", entryID))
		}
		return FromDomainError("Error converting image", err)
	}

	entry, ok := batch.Get(entryID)
	if !ok {
		// Removed while converting; the result was discarded.
		return NewNotFoundError("entry", entryID)
	}
	return respond(c, http.StatusOK, entry)
}

// HandleConvertAll converts every unconverted entry. By default the run
// happens in the background and 202 is returned; ?wait=true blocks and
// returns the summary.
func (h *BatchHandlerImpl) HandleConvertAll(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		summary, err := batch.ConvertAll(c.Request().Context())
		if err != nil {
			if errors.Is(err, queue.ErrBusy) {
				return NewConflictError("batch is already converting")
			}
			return FromDomainError("convert all interrupted", err)
		}
		return respond(c, http.StatusOK, summary)
	}

	err = batch.StartConvertAll(h.runCtx, func(_ queue.Summary, err error) {
		if err != nil {
			fmt.Printf("[Batch %s] Convert all stopped: %v\n", shortID(batch.ID), err)
		}
	})
	if err != nil {
		if errors.Is(err, queue.ErrBusy) {
			return NewConflictError("batch is already converting")
		}
		return FromDomainError("convert all not started", err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"batchId": batch.ID,
		"entries": batch.Len(),
	})
}

// HandleRemoveEntry drops an entry from the batch
func (h *BatchHandlerImpl) HandleRemoveEntry(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}
	entryID := c.Param("entryId")
	if err := batch.Remove(entryID); err != nil {
		return NewNotFoundError("entry", entryID)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleDownloadEntry streams the converted bytes of one entry
func (h *BatchHandlerImpl) HandleDownloadEntry(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}
	entryID := c.Param("entryId")

	dl, err := batch.DownloadOne(entryID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return NewNotFoundError("entry", entryID)
		}
		return FromDomainError("download unavailable", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, attachmentHeader(dl.Filename))
	return c.Blob(http.StatusOK, dl.ContentType, dl.Data)
}

// HandlePreviewEntry serves the preview rendition of an entry
func (h *BatchHandlerImpl) HandlePreviewEntry(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}
	entryID := c.Param("entryId")

	previewID, err := batch.Preview(entryID)
	if err != nil || previewID == "" || h.previews == nil {
		return NewNotFoundError("preview", entryID)
	}
	data, err := h.previews.Open(previewID)
	if err != nil {
		// Released between lookup and read.
		return NewNotFoundError("preview", entryID)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return c.Blob(http.StatusOK, http.DetectContentType(data), data)
}

// HandleDownloadAll streams every converted entry as one zip archive
func (h *BatchHandlerImpl) HandleDownloadAll(c echo.Context) error {
	batch, err := h.batch(c)
	if err != nil {
		return err
	}

	downloads := batch.DownloadAll()
	if len(downloads) == 0 {
		return NewConflictError("no converted entries to download")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, attachmentHeader(ArchiveFilename))
	res.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(res)
	names := models.NewNameSet()
	now := time.Now()
	for _, dl := range downloads {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names.Unique(dl.Filename),
			Method:   zip.Store, // already compressed image data
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("writing archive entry: %w", err)
		}
		if _, err := w.Write(dl.Data); err != nil {
			return fmt.Errorf("writing archive entry: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	fmt.Printf("[Batch %s] Downloaded %d converted file(s) as zip\n", shortID(batch.ID), len(downloads))
	return nil
}

func (h *BatchHandlerImpl) batch(c echo.Context) (*queue.Batch, error) {
	id := c.Param("id")
	batch, ok := h.registry.Get(id)
	if !ok {
		return nil, NewNotFoundError("batch", id)
	}
	return batch, nil
}

func (h *BatchHandlerImpl) accepts(contentType string) bool {
	if len(h.allowed) == 0 {
		return true
	}
	return h.allowed[strings.ToLower(contentType)]
}

// respond encodes v as msgpack when the client asks for it, JSON otherwise
func respond(c echo.Context, status int, v interface{}) error {
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEApplicationMsgpack) {
		data, err := msgpack.Marshal(v)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(status, MIMEApplicationMsgpack, data)
	}
	return c.JSON(status, v)
}

// Request/Response types

type createBatchRequest struct {
	Format  string `json:"format"`
	Quality int    `json:"quality"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Sizes   []int  `json:"sizes"`
}

func (r *createBatchRequest) settings() (queue.Settings, error) {
	var s queue.Settings
	if r.Format != "" {
		f, err := models.ParseFormat(r.Format)
		if err != nil {
			return s, NewBadRequestError("invalid format", err)
		}
		s.Format = f
	}
	if r.Quality < 0 || r.Quality > 100 {
		return s, NewValidationError("quality")
	}
	if r.Width < 0 {
		return s, NewValidationError("width")
	}
	if r.Height < 0 {
		return s, NewValidationError("height")
	}
	if len(r.Sizes) > 0 {
		sizes, err := convert.NormalizeSizes(r.Sizes)
		if err != nil {
			return s, NewBadRequestError("invalid sizes", err)
		}
		r.Sizes = sizes
	}
	s.Quality, s.Width, s.Height, s.Sizes = r.Quality, r.Width, r.Height, r.Sizes
	return s, nil
}

// batchView is the wire form of a batch
type batchView struct {
	ID        string         `json:"id" msgpack:"id"`
	Settings  queue.Settings `json:"settings" msgpack:"settings"`
	CreatedAt time.Time      `json:"createdAt" msgpack:"createdAt"`
	Running   bool           `json:"running" msgpack:"running"`
	Entries   []models.Entry `json:"entries" msgpack:"entries"`
}

func newBatchView(b *queue.Batch) batchView {
	return batchView{
		ID:        b.ID,
		Settings:  b.Settings,
		CreatedAt: b.Created,
		Running:   b.Running(),
		Entries:   b.Entries(),
	}
}
