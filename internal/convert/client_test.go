package convert_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConvert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, convert.ConverterPath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "png", r.FormValue("format"))
		assert.Equal(t, "75", r.FormValue("quality"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "in.jpg", hdr.Filename)

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", `attachment; filename="in.png"`)
		w.Write(append([]byte("out:"), body...))
	}))
	defer srv.Close()

	c := convert.NewClient(srv.URL+"/", nil)
	res, err := c.Convert(context.Background(), "in.jpg", []byte("raw"), convert.Options{Format: models.FormatPNG, Quality: 75})
	require.NoError(t, err)
	assert.Equal(t, "out:raw", string(res.Data))
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "in.png", res.Filename)
}

func TestClientConvertErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad request", http.StatusBadRequest, `{"code":"BAD_REQUEST","error":"No file provided"}`, convert.ErrInvalidInput},
		{"server error", http.StatusInternalServerError, `{"error":"Failed to convert image"}`, convert.ErrProcessing},
		{"plain text", http.StatusBadGateway, "upstream down", convert.ErrProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := convert.NewClient(srv.URL, nil).Convert(context.Background(), "a.png", []byte("x"), convert.Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestClientFallsBackToLocalFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res, err := convert.NewClient(srv.URL, nil).Convert(context.Background(), "shot.bmp", []byte("x"), convert.Options{})
	require.NoError(t, err)
	assert.Equal(t, "shot.webp", res.Filename)
}

func TestClientRejectsEmptyPayload(t *testing.T) {
	_, err := convert.NewClient("http://127.0.0.1:1", nil).Convert(context.Background(), "a.png", nil, convert.Options{})
	assert.True(t, errors.Is(err, convert.ErrInvalidInput))
}
