package model

import (
	"encoding/json"
	"time"
)

// ChunkReference is one retrieved passage as stored with a query.
type ChunkReference struct {
	DocumentID   uint    `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Content      string  `json:"content"`
	Score        float32 `json:"score"`
}

type QueryHistory struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	QueryText       string    `gorm:"type:text;not null" json:"query_text"`
	Answer          string    `gorm:"type:longtext" json:"answer"`
	RetrievedChunks string    `gorm:"type:longtext" json:"-"`
	QueryTime       time.Time `gorm:"not null;index" json:"query_time"`
	ResponseTimeMs  int64     `json:"response_time_ms"`
}

func (QueryHistory) TableName() string {
	return "query_history"
}

// References decodes RetrievedChunks; malformed data yields nil.
func (h *QueryHistory) References() []ChunkReference {
	if h.RetrievedChunks == "" {
		return nil
	}
	var refs []ChunkReference
	if err := json.Unmarshal([]byte(h.RetrievedChunks), &refs); err != nil {
		return nil
	}
	return refs
}

// SetReferences stores refs as JSON.
func (h *QueryHistory) SetReferences(refs []ChunkReference) error {
	if refs == nil {
		refs = []ChunkReference{}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	h.RetrievedChunks = string(b)
	return nil
}
