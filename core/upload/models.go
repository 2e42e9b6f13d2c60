package upload

import (
	"mime"
	"path/filepath"
	"time"
)

// Kinds. The policy (allowed types, size caps) differs per kind.
const (
	KindImage    = "image"
	KindDocument = "document"
)

// allowedTypes maps accepted MIME types to their kind.
// No webp: the thumbnailer has no decoder for it.
var allowedTypes = map[string]string{
	"image/jpeg": KindImage,
	"image/png":  KindImage,
	"image/gif":  KindImage,

	"application/pdf":    KindDocument,
	"text/plain":         KindDocument,
	"text/csv":           KindDocument,
	"application/msword": KindDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": KindDocument,
	"application/vnd.ms-excel": KindDocument,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": KindDocument,
}

// KindOf resolves the kind for a content type; ok is false for refused types.
// Media type parameters (charset etc.) are ignored.
func KindOf(contentType string) (kind string, ok bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	kind, ok = allowedTypes[mt]
	return kind, ok
}

// TypeByName falls back to the file extension when no content type was declared.
func TypeByName(name string) string {
	return mime.TypeByExtension(filepath.Ext(name))
}

// StoredFile is the persisted record of a completed upload.
type StoredFile struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Kind         string    `json:"kind"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"` // SHA-256, hex
	Path         string    `json:"-"`        // relative to the store root
	ThumbPath    string    `json:"-"`
	UploadedBy   string    `json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

func (f StoredFile) HasThumbnail() bool { return f.ThumbPath != "" }

// Attachment is the reference embedded in messages and intervention tickets.
func (f StoredFile) Attachment() Attachment {
	return Attachment{
		FileID:       f.ID,
		Name:         f.OriginalName,
		ContentType:  f.ContentType,
		Size:         f.Size,
		HasThumbnail: f.HasThumbnail(),
	}
}

type Attachment struct {
	FileID       string `json:"file_id"`
	Name         string `json:"name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	HasThumbnail bool   `json:"has_thumbnail"`
}

// Progress is the payload of upload.progress events pushed to the uploader.
type Progress struct {
	UploadID string `json:"upload_id"`
	Name     string `json:"name"`
	Stage    string `json:"stage"`
	Percent  int    `json:"percent"`
	Error    string `json:"error,omitempty"`
}

// Progress stages, in pipeline order.
const (
	StageReceived    = "received"
	StageStored      = "stored"
	StageThumbnailed = "thumbnailed"
	StageComplete    = "complete"
	StageFailed      = "failed"
)
