package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubThumbnailer struct {
	err  error
	size int
}

func (s *stubThumbnailer) Thumbnail(data []byte, size int) ([]byte, error) {
	s.size = size
	if s.err != nil {
		return nil, s.err
	}
	return []byte("thumb"), nil
}

func TestPreviewStore_CreateAndRelease(t *testing.T) {
	store := createTestStore(t)
	thumbs := &stubThumbnailer{}
	previews := NewPreviewStore(store, thumbs, 0)

	id, err := previews.CreatePreview("photo.png", []byte("original"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, DefaultPreviewSize, thumbs.size)
	assert.Equal(t, 1, previews.Live())

	data, err := previews.Open(id)
	require.NoError(t, err)
	assert.Equal(t, "thumb", string(data))

	require.NoError(t, previews.ReleasePreview(id))
	assert.Equal(t, 0, previews.Live())
	assert.Error(t, previews.ReleasePreview(id), "double release reports the missing handle")
	assert.NoError(t, previews.ReleasePreview(""), "empty handle is a no-op")
}

func TestPreviewStore_FallsBackToOriginal(t *testing.T) {
	store := createTestStore(t)
	previews := NewPreviewStore(store, &stubThumbnailer{err: errors.New("not an image")}, 64)

	id, err := previews.CreatePreview("notes.txt", []byte("raw bytes"))
	require.NoError(t, err)

	data, err := previews.Open(id)
	require.NoError(t, err)
	assert.Equal(t, "raw bytes", string(data))
}

func TestPreviewStore_NilThumbnailer(t *testing.T) {
	previews := NewPreviewStore(createTestStore(t), nil, 0)

	id, err := previews.CreatePreview("a.png", []byte{9})
	require.NoError(t, err)

	data, err := previews.Open(id)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, data)
}
