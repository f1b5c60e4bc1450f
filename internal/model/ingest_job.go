package model

// IngestJob is the body of a message on the ingest queue. The publisher and
// the consumer both use it.
type IngestJob struct {
	DocumentID uint `json:"document_id"`
}
