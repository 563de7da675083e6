package models

import (
	"fmt"
	"path"
	"strings"
)

// Format is an output image format understood by the converter.
type Format string

const (
	FormatWebP Format = "webp"
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatAVIF Format = "avif"
	FormatICO  Format = "ico"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// DefaultFormat is used when a request does not name one.
const DefaultFormat = FormatWebP

var contentTypes = map[Format]string{
	FormatWebP: "image/webp",
	FormatJPG:  "image/jpeg",
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatAVIF: "image/avif",
	FormatICO:  "image/x-icon",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
}

// Formats lists every supported format in display order.
func Formats() []Format {
	return []Format{FormatWebP, FormatJPG, FormatJPEG, FormatPNG, FormatAVIF, FormatICO, FormatGIF, FormatBMP, FormatTIFF}
}

// ParseFormat normalises a user supplied format name ("WEBP", ".png", "tif").
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if name == "tif" {
		name = "tiff"
	}
	f := Format(name)
	if _, ok := contentTypes[f]; !ok {
		return "", fmt.Errorf("unsupported format: %q", s)
	}
	return f, nil
}

// Extension returns the file extension (without dot) for the format.
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if ct, ok := contentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ReplaceExtension swaps the extension of name for ext. Only the last
// segment of a slash separated name is considered. A name that is nothing
// but an extension (".bashrc") becomes "converted.<ext>" rather than a
// hidden ".<ext>" file.
func ReplaceExtension(name, ext string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	if base == "" {
		base = "converted"
	}
	return base + "." + ext
}
