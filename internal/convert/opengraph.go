package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/devtoolbox/backend/internal/models"
	"github.com/disintegration/imaging"
)

// Open Graph card geometry.
const (
	OpenGraphWidth  = 1200
	OpenGraphHeight = 630
	openGraphBorder = 40
)

// mutedBackground is the light theme "muted" colour (#f4f4f5) used as frame.
var mutedBackground = color.NRGBA{R: 0xf4, G: 0xf4, B: 0xf5, A: 0xff}

// OpenGraph renders the uploaded image as a 1200x630 social card: the
// picture fills the inner area inside a muted border.
func (s *Service) OpenGraph(ctx context.Context, name string, data []byte, format models.Format) (*Result, error) {
	if format == "" {
		format = models.FormatPNG
	}
	if format != models.FormatPNG && format != models.FormatWebP {
		return nil, fmt.Errorf("%w: open graph images are png or webp, got %q", ErrInvalidInput, format)
	}

	img, err := s.decode(ctx, data)
	if err != nil {
		return nil, err
	}

	inner := imaging.Fill(img,
		OpenGraphWidth-2*openGraphBorder, OpenGraphHeight-2*openGraphBorder,
		imaging.Center, imaging.Lanczos)
	card := imaging.New(OpenGraphWidth, OpenGraphHeight, mutedBackground)
	card = imaging.Paste(card, inner, image.Pt(openGraphBorder, openGraphBorder))

	var buf bytes.Buffer
	if err := encode(&buf, card, format, s.quality); err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrProcessing, format, err)
	}
	return &Result{
		Data:        buf.Bytes(),
		ContentType: format.ContentType(),
		Filename:    models.ReplaceExtension(name, format.Extension()),
	}, nil
}
