package media

import (
	"io"
	"time"
)

// Category is the coarse media class derived from a MIME type.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
)

// ParseCategory accepts "image"/"images"/"video"/"videos" in any case.
func ParseCategory(raw string) (Category, bool) {
	switch normalizeToken(raw) {
	case "image", "images":
		return CategoryImage, true
	case "video", "videos":
		return CategoryVideo, true
	default:
		return "", false
	}
}

// Association tag keys accepted from upload forms.
const (
	TagTaskID     = "taskId"
	TagBuildingID = "buildingId"
)

// Object is the metadata of one stored media item. Objects are immutable once stored.
type Object struct {
	ID           string            `json:"id"`
	StoredName   string            `json:"stored_name"`
	OriginalName string            `json:"original_name"`
	MimeType     string            `json:"mime_type"`
	Category     Category          `json:"category"`
	SizeBytes    int64             `json:"size_bytes"`
	CreatedAt    time.Time         `json:"created_at"`
	ModifiedAt   time.Time         `json:"modified_at,omitempty"`
	OwnerRef     string            `json:"owner_ref,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// IsVideo reports whether the object is eligible for partial-content delivery.
func (o Object) IsVideo() bool {
	return o.Category == CategoryVideo
}

// Clone returns a copy that does not share the Tags map.
func (o Object) Clone() Object {
	if o.Tags != nil {
		tags := make(map[string]string, len(o.Tags))
		for k, v := range o.Tags {
			tags[k] = v
		}
		o.Tags = tags
	}
	return o
}

// Part is one file of an upload request. Open is called at most once.
type Part struct {
	OriginalName string
	MimeType     string
	// Size is the byte count observed by the transport, or -1 when unknown.
	Size int64
	Open func() (io.ReadCloser, error)
}

// UploadResult is the outcome of one part in a batch upload.
type UploadResult struct {
	Index        int
	OriginalName string
	Object       *Object
	Err          error
}

// ListQuery selects a page of the catalog.
type ListQuery struct {
	Page       int
	Limit      int
	Category   Category
	OwnerRef   string
	TaskID     string
	BuildingID string
}

// Pagination describes the position of a page within the catalog.
type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// NewPagination computes page counters for total items.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// Stats aggregates catalog counters.
type Stats struct {
	TotalFiles  int        `json:"totalFiles"`
	TotalSize   int64      `json:"totalSize"`
	ImageCount  int        `json:"imageCount"`
	VideoCount  int        `json:"videoCount"`
	StorageType string     `json:"storageType"`
	LastUpload  *time.Time `json:"lastUpload"`
}

// Add folds one object into the counters.
func (s *Stats) Add(obj Object) {
	s.TotalFiles++
	s.TotalSize += obj.SizeBytes
	switch obj.Category {
	case CategoryImage:
		s.ImageCount++
	case CategoryVideo:
		s.VideoCount++
	}
	if s.LastUpload == nil || obj.CreatedAt.After(*s.LastUpload) {
		created := obj.CreatedAt
		s.LastUpload = &created
	}
}
