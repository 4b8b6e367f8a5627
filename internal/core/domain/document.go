package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded DocumentStatus = "uploaded"
	StatusIndexing DocumentStatus = "indexing"
	StatusReady    DocumentStatus = "ready"
	StatusFailed   DocumentStatus = "failed"
)

type Document struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Title       string         `json:"title"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Content     string         `json:"content,omitempty"`
	URL         string         `json:"url,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
