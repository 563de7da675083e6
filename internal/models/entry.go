package models

import "time"

// EntryStatus represents where a batch entry is in its conversion lifecycle.
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "pending"
	EntryStatusConverting EntryStatus = "converting"
	EntryStatusConverted  EntryStatus = "converted"
	EntryStatusFailed     EntryStatus = "failed"
)

// CanStart reports whether a conversion may begin from this status.
func (s EntryStatus) CanStart() bool {
	return s == EntryStatusPending || s == EntryStatusFailed
}

// Entry is one uploaded file moving through a conversion batch.
// Source and Result are never serialised; use the download routes.
type Entry struct {
	ID          string      `json:"id" msgpack:"id"`
	Name        string      `json:"name" msgpack:"name"`
	ContentType string      `json:"contentType" msgpack:"contentType"`
	Size        int64       `json:"size" msgpack:"size"`
	Format      Format      `json:"format" msgpack:"format"`
	Status      EntryStatus `json:"status" msgpack:"status"`
	Progress    float64     `json:"progress" msgpack:"progress"` // 0-100
	PreviewID   string      `json:"previewId,omitempty" msgpack:"previewId,omitempty"`
	ResultSize  int64       `json:"resultSize,omitempty" msgpack:"resultSize,omitempty"`
	Error       string      `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt   time.Time   `json:"createdAt" msgpack:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty" msgpack:"completedAt,omitempty"`

	Source            []byte `json:"-" msgpack:"-"`
	Result            []byte `json:"-" msgpack:"-"`
	ResultContentType string `json:"-" msgpack:"-"`
}

// OutputName is the download filename: the original name with the target
// format's extension.
func (e *Entry) OutputName() string {
	return ReplaceExtension(e.Name, e.Format.Extension())
}

// Upload is a raw file handed to a batch by the presentation layer.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Download is a converted file ready to be sent to the client.
type Download struct {
	EntryID     string
	Filename    string
	ContentType string
	Data        []byte
}
