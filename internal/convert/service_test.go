package convert_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"

	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/devtoolbox/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "image/jpeg"
	_ "image/png"
)

func decodeConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestConvertFormats(t *testing.T) {
	svc := convert.NewService(90)
	src := testutil.SamplePNG(40, 20)

	tests := []struct {
		name        string
		format      models.Format
		wantDecoder string
		wantType    string
		wantFile    string
	}{
		{"png", models.FormatPNG, "png", "image/png", "photo.png"},
		{"jpg", models.FormatJPG, "jpeg", "image/jpeg", "photo.jpg"},
		{"jpeg", models.FormatJPEG, "jpeg", "image/jpeg", "photo.jpeg"},
		{"gif", models.FormatGIF, "gif", "image/gif", "photo.gif"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Convert(context.Background(), "photo.png", src, convert.Options{Format: tt.format})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, res.ContentType)
			assert.Equal(t, tt.wantFile, res.Filename)

			cfg, decoder := decodeConfig(t, res.Data)
			assert.Equal(t, tt.wantDecoder, decoder)
			assert.Equal(t, 40, cfg.Width)
			assert.Equal(t, 20, cfg.Height)
		})
	}
}

func TestConvertResize(t *testing.T) {
	svc := convert.NewService(0)
	src := testutil.SamplePNG(100, 50)

	res, err := svc.Convert(context.Background(), "wide.png", src, convert.Options{Format: models.FormatPNG, Width: 50})
	require.NoError(t, err)
	cfg, _ := decodeConfig(t, res.Data)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 25, cfg.Height, "aspect ratio kept when only width is set")

	res, err = svc.Convert(context.Background(), "wide.png", src, convert.Options{Format: models.FormatPNG, Width: 20, Height: 20})
	require.NoError(t, err)
	cfg, _ = decodeConfig(t, res.Data)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height, "fits inside the box when both are set")
}

func TestConvertSingleICO(t *testing.T) {
	svc := convert.NewService(0)
	res, err := svc.Convert(context.Background(), "logo.png", testutil.SamplePNG(32, 32), convert.Options{Format: models.FormatICO})
	require.NoError(t, err)
	assert.Equal(t, "logo.ico", res.Filename)
	assert.Equal(t, []byte{0, 0, 1, 0}, res.Data[:4])
}

func TestConvertICOWithSizesUsesFavicon(t *testing.T) {
	svc := convert.NewService(0)
	res, err := svc.Convert(context.Background(), "logo.png", testutil.SamplePNG(64, 64),
		convert.Options{Format: models.FormatICO, Sizes: []int{16, 32}})
	require.NoError(t, err)
	assert.Equal(t, "logo.ico", res.Filename)
	assert.Equal(t, byte(2), res.Data[4], "two images in the directory")
}

func TestConvertRejectsBadInput(t *testing.T) {
	svc := convert.NewService(0)
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
		opts convert.Options
	}{
		{"empty", nil, convert.Options{Format: models.FormatPNG}},
		{"not an image", []byte("hello"), convert.Options{Format: models.FormatPNG}},
		{"unknown format", testutil.SamplePNG(4, 4), convert.Options{Format: "xcf"}},
		{"negative width", testutil.SamplePNG(4, 4), convert.Options{Format: models.FormatPNG, Width: -1}},
		{"bad ico size", testutil.SamplePNG(4, 4), convert.Options{Format: models.FormatICO, Sizes: []int{512}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Convert(ctx, "in.png", tt.data, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, convert.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestThumbnail(t *testing.T) {
	svc := convert.NewService(0)

	thumb, err := svc.Thumbnail(testutil.SamplePNG(600, 300), 300)
	require.NoError(t, err)
	cfg, format := decodeConfig(t, thumb)
	assert.Equal(t, "png", format)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 150, cfg.Height)

	small, err := svc.Thumbnail(testutil.SamplePNG(10, 10), 300)
	require.NoError(t, err)
	cfg, _ = decodeConfig(t, small)
	assert.Equal(t, 10, cfg.Width, "small images are not upscaled")
}

func TestOpenGraph(t *testing.T) {
	svc := convert.NewService(0)

	res, err := svc.OpenGraph(context.Background(), "card.jpg", testutil.SamplePNG(300, 300), "")
	require.NoError(t, err)
	assert.Equal(t, "card.png", res.Filename)
	cfg, _ := decodeConfig(t, res.Data)
	assert.Equal(t, convert.OpenGraphWidth, cfg.Width)
	assert.Equal(t, convert.OpenGraphHeight, cfg.Height)

	_, err = svc.OpenGraph(context.Background(), "card.jpg", testutil.SamplePNG(10, 10), models.FormatGIF)
	assert.True(t, errors.Is(err, convert.ErrInvalidInput))
}
