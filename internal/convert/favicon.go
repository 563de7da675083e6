package convert

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/devtoolbox/backend/internal/models"
	"github.com/disintegration/imaging"
)

// MaxIconSize is the largest edge an ICO directory entry can describe.
const MaxIconSize = 256

// FaviconFilename is the download name of generated icon bundles.
const FaviconFilename = "favicon.ico"

// DefaultFaviconSizes mirrors the checkboxes of the ICO generator page.
var DefaultFaviconSizes = []int{16, 32, 48, 64, 128}

// NormalizeSizes validates requested icon sizes and returns them sorted
// ascending without duplicates.
func NormalizeSizes(sizes []int) ([]int, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("%w: at least one size is required", ErrInvalidInput)
	}
	seen := make(map[int]struct{}, len(sizes))
	out := make([]int, 0, len(sizes))
	for _, size := range sizes {
		if size < 1 || size > MaxIconSize {
			return nil, fmt.Errorf("%w: size %d out of range 1..%d", ErrInvalidInput, size, MaxIconSize)
		}
		if _, dup := seen[size]; dup {
			continue
		}
		seen[size] = struct{}{}
		out = append(out, size)
	}
	sort.Ints(out)
	return out, nil
}

// Favicon resizes the source to each square size and packs the PNG
// renditions into a single multi-resolution ICO file.
func (s *Service) Favicon(ctx context.Context, data []byte, sizes []int) (*Result, error) {
	sizes, err := NormalizeSizes(sizes)
	if err != nil {
		return nil, err
	}
	img, err := s.decode(ctx, data)
	if err != nil {
		return nil, err
	}

	images := make([][]byte, 0, len(sizes))
	for _, size := range sizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, imaging.Resize(img, size, size, imaging.Lanczos), imaging.PNG); err != nil {
			return nil, fmt.Errorf("%w: encode %dx%d: %v", ErrProcessing, size, size, err)
		}
		images = append(images, buf.Bytes())
	}

	packed, err := PackICO(sizes, images)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}
	return &Result{
		Data:        packed,
		ContentType: models.FormatICO.ContentType(),
		Filename:    FaviconFilename,
	}, nil
}

// PackICO writes an ICONDIR header, one ICONDIRENTRY per image and the PNG
// payloads. sizes[i] is the square edge of images[i].
func PackICO(sizes []int, images [][]byte) ([]byte, error) {
	if len(sizes) != len(images) {
		return nil, fmt.Errorf("ico: %d sizes for %d images", len(sizes), len(images))
	}
	if len(images) == 0 || len(images) > 0xFFFF {
		return nil, fmt.Errorf("ico: invalid image count %d", len(images))
	}

	const headerSize, entrySize = 6, 16
	buf := new(bytes.Buffer)

	// ICONDIR
	binary.Write(buf, binary.LittleEndian, uint16(0)) // reserved
	binary.Write(buf, binary.LittleEndian, uint16(1)) // type: icon
	binary.Write(buf, binary.LittleEndian, uint16(len(images)))

	offset := uint32(headerSize + entrySize*len(images))
	for i, data := range images {
		edge := byte(sizes[i])
		if sizes[i] >= MaxIconSize {
			edge = 0 // 0 means 256
		}
		buf.WriteByte(edge) // width
		buf.WriteByte(edge) // height
		buf.WriteByte(0)    // palette
		buf.WriteByte(0)    // reserved
		binary.Write(buf, binary.LittleEndian, uint16(1))  // planes
		binary.Write(buf, binary.LittleEndian, uint16(32)) // bpp
		binary.Write(buf, binary.LittleEndian, uint32(len(data)))
		binary.Write(buf, binary.LittleEndian, offset)
		offset += uint32(len(data))
	}

	for _, data := range images {
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
