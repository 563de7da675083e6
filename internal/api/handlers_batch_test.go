package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devtoolbox/backend/internal/models"
	"github.com/devtoolbox/backend/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func createBatch(t *testing.T, s *testServer, body string) batchView {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/batches", reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := s.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view batchView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func addEntries(t *testing.T, s *testServer, batchID string, names ...string) []models.Entry {
	t.Helper()
	files := make([]formFile, len(names))
	for i, n := range names {
		files[i] = formFile{field: "files", name: n, contentType: "image/png", data: []byte("data-" + n)}
	}
	rec := s.do(multipartRequest(t, http.MethodPost, "/api/batches/"+batchID+"/entries", files, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Entries []models.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Entries
}

func getBatch(t *testing.T, s *testServer, id string) batchView {
	t.Helper()
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var view batchView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func TestBatchLifecycle(t *testing.T) {
	s := newTestServer(t)

	batch := createBatch(t, s, `{"format":"png","quality":80}`)
	assert.Equal(t, models.FormatPNG, batch.Settings.Format)
	assert.Equal(t, 80, batch.Settings.Quality)
	assert.Empty(t, batch.Entries)

	entries := addEntries(t, s, batch.ID, "a.png", "b.png")
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, models.EntryStatusPending, e.Status)
		assert.NotEmpty(t, e.PreviewID)
	}

	// Convert the first entry only
	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/entries/"+entries[0].ID+"/convert", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var converted models.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &converted))
	assert.Equal(t, models.EntryStatusConverted, converted.Status)
	assert.Equal(t, float64(100), converted.Progress)

	view := getBatch(t, s, batch.ID)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "a.png", view.Entries[0].Name)
	assert.Equal(t, models.EntryStatusConverted, view.Entries[0].Status)
	assert.Equal(t, models.EntryStatusPending, view.Entries[1].Status)

	// Download the converted entry
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID+"/entries/"+entries[0].ID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "converted:data-a.png", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "a.png")

	// The pending one has nothing to download
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID+"/entries/"+entries[1].ID+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Convert everything synchronously
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/convert?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary queue.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, queue.Summary{Total: 2, Converted: 1, Failed: 0, Skipped: 1}, summary)
	assert.Equal(t, 1, s.conv.Calls("a.png"), "converted entries are not redone")

	// Remove one entry and its preview
	rec = s.do(httptest.NewRequest(http.MethodDelete, "/api/batches/"+batch.ID+"/entries/"+entries[1].ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, s.store.Deleted(), entries[1].PreviewID)
	assert.Len(t, getBatch(t, s, batch.ID).Entries, 1)

	rec = s.do(httptest.NewRequest(http.MethodDelete, "/api/batches/"+batch.ID+"/entries/"+entries[1].ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Teardown
	rec = s.do(httptest.NewRequest(http.MethodDelete, "/api/batches/"+batch.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, s.store.Deleted(), entries[0].PreviewID)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchCreate_Validation(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{
		`{"format":"svg"}`,
		`{"quality":101}`,
		`{"width":-1}`,
		`{"sizes":[0]}`,
		`{not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/batches", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := s.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	// Defaults when no body is sent
	view := createBatch(t, s, "")
	assert.Equal(t, models.FormatWebP, view.Settings.Format)
}

func TestBatchCreate_Limit(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		createBatch(t, s, "")
	}
	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/batches", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Batches []queue.BatchInfo `json:"batches"`
		Max     int               `json:"max"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Batches, 3)
	assert.Equal(t, 3, list.Max)
}

func TestAddEntries_Rejections(t *testing.T) {
	s := newTestServer(t)
	batch := createBatch(t, s, "")

	// One disallowed type rejects the whole request
	files := []formFile{
		{field: "files", name: "ok.png", contentType: "image/png", data: []byte("x")},
		{field: "files", name: "doc.pdf", contentType: "application/pdf", data: []byte("y")},
	}
	rec := s.do(multipartRequest(t, http.MethodPost, "/api/batches/"+batch.ID+"/entries", files, nil))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, getBatch(t, s, batch.ID).Entries)
	assert.Equal(t, 0, s.store.Len(), "no previews created")

	// No files at all
	rec = s.do(multipartRequest(t, http.MethodPost, "/api/batches/"+batch.ID+"/entries", nil, map[string]string{"x": "y"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown batch
	rec = s.do(multipartRequest(t, http.MethodPost, "/api/batches/missing/entries", files[:1], nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConvertEntry_FailureAndRetry(t *testing.T) {
	s := newTestServer(t)
	batch := createBatch(t, s, "")
	entries := addEntries(t, s, batch.ID, "bad.png", "good.png")

	s.conv.FailOn("bad.png", errors.New("server returned 500"))
	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/entries/"+entries[0].ID+"/convert", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	view := getBatch(t, s, batch.ID)
	assert.Equal(t, models.EntryStatusFailed, view.Entries[0].Status)
	assert.Equal(t, float64(0), view.Entries[0].Progress)
	assert.Equal(t, models.EntryStatusPending, view.Entries[1].Status, "siblings unaffected")

	s.conv.Heal()
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/entries/"+entries[0].ID+"/convert", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/entries/unknown/convert", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConvertAll_Background(t *testing.T) {
	s := newTestServer(t)
	batch := createBatch(t, s, "")
	addEntries(t, s, batch.ID, "a.png", "b.png", "c.png")

	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/convert", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	b, ok := s.registry.Get(batch.ID)
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		if b.Running() {
			return false
		}
		for _, e := range b.Entries() {
			if e.Status != models.EntryStatusConverted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.conv.MaxInFlight(), "convert all is sequential")
}

func TestConvertAll_SecondStartConflicts(t *testing.T) {
	s := newTestServer(t)
	s.conv.Gate = make(chan struct{})
	batch := createBatch(t, s, "")
	addEntries(t, s, batch.ID, "a.png", "b.png")

	rec := s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/convert", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The run is claimed before the first response is written
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/convert", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/convert?wait=true", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(s.conv.Gate)
	b, ok := s.registry.Get(batch.ID)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return !b.Running() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.conv.Calls("a.png"))
	assert.Equal(t, 1, s.conv.Calls("b.png"))
}

func TestDownloadAll_Zip(t *testing.T) {
	s := newTestServer(t)
	batch := createBatch(t, s, `{"format":"png"}`)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing converted yet")

	// Two uploads share a name; the archive keeps both
	addEntries(t, s, batch.ID, "dup.png", "dup.png", "other.png")
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/batches/"+batch.ID+"/convert?wait=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ArchiveFilename)

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"dup.png", "dup (1).png", "other.png"}, names)
}

func TestPreviewEntry(t *testing.T) {
	s := newTestServer(t)
	batch := createBatch(t, s, "")
	entries := addEntries(t, s, batch.ID, "a.png")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID+"/entries/"+entries[0].ID+"/preview", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data-a.png", rec.Body.String())

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID+"/entries/nope/preview", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBatch_Msgpack(t *testing.T) {
	s := newTestServer(t)
	batch := createBatch(t, s, "")
	addEntries(t, s, batch.ID, "a.png")

	req := httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID, nil)
	req.Header.Set("Accept", MIMEApplicationMsgpack)
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get("Content-Type"))

	var view batchView
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, batch.ID, view.ID)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "a.png", view.Entries[0].Name)
}
