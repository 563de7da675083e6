// Package models contains domain types shared by the Dev Toolbox packages.
package models

import "time"

// FileInfo represents metadata about a stored file (previews, renditions).
type FileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"` // "stored", "released"
}
