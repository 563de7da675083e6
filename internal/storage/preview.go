package storage

import (
	"fmt"
)

// DefaultPreviewSize matches the 300px preview shown next to each entry.
const DefaultPreviewSize = 300

// Thumbnailer renders a reduced preview of an image.
type Thumbnailer interface {
	Thumbnail(data []byte, size int) ([]byte, error)
}

// PreviewStore hands out revocable preview handles backed by a Store.
// A handle is the stored file ID; releasing it deletes the file.
type PreviewStore struct {
	store  Store
	thumbs Thumbnailer
	size   int
}

// NewPreviewStore creates a preview store. thumbs may be nil, in which case
// previews are the raw uploaded bytes.
func NewPreviewStore(store Store, thumbs Thumbnailer, size int) *PreviewStore {
	if size <= 0 {
		size = DefaultPreviewSize
	}
	return &PreviewStore{store: store, thumbs: thumbs, size: size}
}

// CreatePreview stores a rendition of data and returns its handle. When the
// thumbnail cannot be rendered the original bytes are kept instead.
func (p *PreviewStore) CreatePreview(name string, data []byte) (string, error) {
	preview := data
	if p.thumbs != nil {
		thumb, err := p.thumbs.Thumbnail(data, p.size)
		if err != nil {
			fmt.Printf("[Preview] Warning: thumbnail for %s failed, keeping original: %v\n", name, err)
		} else {
			preview = thumb
		}
	}

	info, err := p.store.SaveBytes(name, preview)
	if err != nil {
		return "", fmt.Errorf("saving preview: %w", err)
	}
	return info.ID, nil
}

// ReleasePreview deletes the preview behind id.
func (p *PreviewStore) ReleasePreview(id string) error {
	if id == "" {
		return nil
	}
	return p.store.Delete(id)
}

// Open returns the preview bytes for id.
func (p *PreviewStore) Open(id string) ([]byte, error) {
	return p.store.Open(id)
}

// Live returns the number of unreleased previews.
func (p *PreviewStore) Live() int {
	return p.store.Len()
}
