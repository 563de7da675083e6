package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/devtoolbox/backend/internal/queue"
	"github.com/devtoolbox/backend/internal/storage"
	"github.com/devtoolbox/backend/internal/testutil"
	"github.com/devtoolbox/backend/internal/theme"
	"github.com/labstack/echo/v4"
)

type testServer struct {
	echo     *echo.Echo
	registry *queue.Registry
	conv     *testutil.FakeConverter
	store    *testutil.MockStorage
	hub      *EventHub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conv := testutil.NewFakeConverter()
	store := testutil.NewMockStorage()
	previews := storage.NewPreviewStore(store, nil, 0)
	registry := queue.NewRegistry(conv, previews, queue.Settings{Format: models.FormatWebP}, 3)
	hub := NewEventHub(registry, 0)
	registry.SetNotifierFactory(hub.Notifier)
	t.Cleanup(registry.CloseAll)

	e := echo.New()
	SetupMiddleware(e)
	handlers := NewHandlers(&Dependencies{
		Images:       convert.NewService(convert.DefaultQuality),
		Registry:     registry,
		Previews:     previews,
		Themes:       theme.NewSet(),
		Hub:          hub,
		RunCtx:       context.Background(),
		MaxUpload:    1 << 20,
		AllowedTypes: []string{"image/png", "image/jpeg"},
		Version:      "test",
	})
	RegisterRoutes(e, handlers)
	RegisterWebSocketRoutes(e, handlers)

	return &testServer{echo: e, registry: registry, conv: conv, store: store, hub: hub}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

type formFile struct {
	field       string
	name        string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, method, target string, files []formFile, fields map[string]string) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		ct := f.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := writer.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(f.data)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req := httptest.NewRequest(method, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}
