// Package convert implements the image Conversion Endpoint: one payload in,
// one transformed payload out. Codecs come from imaging, go-webp, avif and
// golang-ico; this package only wires them together.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	ico "github.com/biessek/golang-ico"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	// Decoders registered with image.Decode for formats imaging does not cover.
	_ "golang.org/x/image/webp"
)

var (
	// ErrInvalidInput marks problems with the request itself (4xx).
	ErrInvalidInput = errors.New("invalid input")
	// ErrProcessing marks failures while decoding or encoding (5xx).
	ErrProcessing = errors.New("processing failed")
)

// DefaultQuality is the encoder quality used when a request names none.
const DefaultQuality = 100

const avifSpeed = 8

// Options are the optional typed parameters of a conversion request.
type Options struct {
	Format  models.Format
	Quality int
	Width   int
	Height  int
	Sizes   []int // multi-resolution ICO output
}

// Result is a converted payload.
type Result struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Service performs conversions in-process.
type Service struct {
	quality int
}

// NewService creates a converter. A quality outside 1..100 falls back to
// DefaultQuality.
func NewService(defaultQuality int) *Service {
	if defaultQuality < 1 || defaultQuality > 100 {
		defaultQuality = DefaultQuality
	}
	return &Service{quality: defaultQuality}
}

// Convert decodes data, optionally resizes it and encodes opts.Format.
func (s *Service) Convert(ctx context.Context, name string, data []byte, opts Options) (*Result, error) {
	format := opts.Format
	if format == "" {
		format = models.DefaultFormat
	}
	if _, err := models.ParseFormat(string(format)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if format == models.FormatICO && len(opts.Sizes) > 0 {
		res, err := s.Favicon(ctx, data, opts.Sizes)
		if err != nil {
			return nil, err
		}
		res.Filename = models.ReplaceExtension(name, format.Extension())
		return res, nil
	}
	if opts.Width < 0 || opts.Height < 0 {
		return nil, fmt.Errorf("%w: dimensions must not be negative", ErrInvalidInput)
	}

	img, err := s.decode(ctx, data)
	if err != nil {
		return nil, err
	}
	if opts.Width > 0 || opts.Height > 0 {
		img = resize(img, opts.Width, opts.Height)
	}

	var buf bytes.Buffer
	if err := encode(&buf, img, format, s.qualityFor(opts.Quality)); err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrProcessing, format, err)
	}

	return &Result{
		Data:        buf.Bytes(),
		ContentType: format.ContentType(),
		Filename:    models.ReplaceExtension(name, format.Extension()),
	}, nil
}

// Thumbnail renders a PNG preview that fits in size x size.
func (s *Service) Thumbnail(data []byte, size int) ([]byte, error) {
	img, err := s.decode(context.Background(), data)
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() > size || b.Dy() > size {
		img = imaging.Fit(img, size, size, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: encode preview: %v", ErrProcessing, err)
	}
	return buf.Bytes(), nil
}

func (s *Service) qualityFor(q int) int {
	if q < 1 || q > 100 {
		return s.quality
	}
	return q
}

func (s *Service) decode(ctx context.Context, data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrInvalidInput, err)
	}
	return img, nil
}

// resize keeps the aspect ratio when only one dimension is given and fits
// inside the box when both are.
func resize(img image.Image, width, height int) image.Image {
	if width > 0 && height > 0 {
		return imaging.Fit(img, width, height, imaging.Lanczos)
	}
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

func encode(w io.Writer, img image.Image, format models.Format, quality int) error {
	switch format {
	case models.FormatWebP:
		opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
		if err != nil {
			return err
		}
		return webp.Encode(w, img, opts)
	case models.FormatAVIF:
		return avif.Encode(w, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: avifSpeed})
	case models.FormatICO:
		if b := img.Bounds(); b.Dx() > MaxIconSize || b.Dy() > MaxIconSize {
			img = imaging.Fit(img, MaxIconSize, MaxIconSize, imaging.Lanczos)
		}
		return ico.Encode(w, img)
	case models.FormatJPG, models.FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case models.FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case models.FormatGIF:
		return imaging.Encode(w, img, imaging.GIF)
	case models.FormatBMP:
		return imaging.Encode(w, img, imaging.BMP)
	case models.FormatTIFF:
		return imaging.Encode(w, img, imaging.TIFF)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
