package http

import (
	"time"

	"mediasvc/internal/media"
	"mediasvc/internal/server/app"
)

type uploadResponse struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	FileName     string    `json:"fileName"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type uploadErrorEntry struct {
	Index        int    `json:"index"`
	OriginalName string `json:"originalName"`
	Message      string `json:"message"`
	Code         string `json:"code"`
}

type batchUploadResponse struct {
	Files    []uploadResponse   `json:"files"`
	Errors   []uploadErrorEntry `json:"errors"`
	Uploaded int                `json:"uploaded"`
	Failed   int                `json:"failed"`
}

type mediaResponse struct {
	ID           string            `json:"id"`
	FileName     string            `json:"fileName"`
	OriginalName string            `json:"originalName"`
	MimeType     string            `json:"mimeType"`
	Type         media.Category    `json:"type"`
	Size         int64             `json:"size"`
	CreatedAt    time.Time         `json:"createdAt"`
	ModifiedAt   time.Time         `json:"modifiedAt"`
	URL          string            `json:"url"`
	OwnerRef     string            `json:"ownerRef,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

type listResponse struct {
	Media      []mediaResponse  `json:"media"`
	Pagination media.Pagination `json:"pagination"`
}

type deleteFileResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

type deleteMediaResponse struct {
	Message string `json:"message"`
	MediaID string `json:"mediaId"`
}

type healthResponse struct {
	Status       string    `json:"status"`
	StorageType  string    `json:"storageType"`
	MediaCount   int       `json:"mediaCount"`
	TotalSize    string    `json:"totalSize"`
	MaxFileSize  string    `json:"maxFileSize"`
	MaxFiles     int       `json:"maxFiles"`
	AllowedTypes []string  `json:"allowedTypes"`
	Timestamp    time.Time `json:"timestamp"`
	Error        string    `json:"error,omitempty"`
}

func newUploadResponse(service *app.MediaService, obj media.Object) uploadResponse {
	return uploadResponse{
		ID:           obj.ID,
		URL:          service.URLFor(obj),
		FileName:     obj.StoredName,
		OriginalName: obj.OriginalName,
		MimeType:     obj.MimeType,
		Size:         obj.SizeBytes,
		UploadedAt:   obj.CreatedAt,
	}
}

func newMediaResponse(service *app.MediaService, obj media.Object) mediaResponse {
	modified := obj.ModifiedAt
	if modified.IsZero() {
		modified = obj.CreatedAt
	}
	return mediaResponse{
		ID:           obj.ID,
		FileName:     obj.StoredName,
		OriginalName: obj.OriginalName,
		MimeType:     obj.MimeType,
		Type:         obj.Category,
		Size:         obj.SizeBytes,
		CreatedAt:    obj.CreatedAt,
		ModifiedAt:   modified,
		URL:          service.URLFor(obj),
		OwnerRef:     obj.OwnerRef,
		Tags:         obj.Tags,
	}
}
