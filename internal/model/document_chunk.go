package model

import "time"

// DocumentChunk is one indexed segment of a document. VectorID is the id of
// the matching point in the vector store.
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;uniqueIndex:idx_chunk_document_index,priority:1" json:"document_id"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_chunk_document_index,priority:2" json:"chunk_index"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	VectorID   string    `gorm:"size:64;not null;uniqueIndex" json:"vector_id"`
	CharCount  int       `gorm:"not null" json:"char_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
