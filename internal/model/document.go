package model

import "time"

type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusCompleted  DocumentStatus = "COMPLETED"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

// Document is an uploaded file and the state of its ingestion.
type Document struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	FileName     string         `gorm:"size:255;not null" json:"file_name"`
	FileSize     int64          `gorm:"not null" json:"file_size"`
	FileType     string         `gorm:"size:128;not null" json:"file_type"`
	FilePath     string         `gorm:"size:512;not null" json:"-"`
	Status       DocumentStatus `gorm:"size:16;not null;index" json:"status"`
	UploadTime   time.Time      `gorm:"not null;index" json:"upload_time"`
	ProcessTime  *time.Time     `json:"process_time,omitempty"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	ChunkCount   int            `gorm:"not null;default:0" json:"chunk_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}
