// Package chunker splits extracted document text into overlapping windows and
// decides which MIME types the pipeline can ingest.
package chunker

import (
	"strings"

	"docrag/internal/pkg/apperr"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 150
)

var supportedMIMETypes = map[string]struct{}{
	"application/pdf": {},
	"text/plain":      {},
	"text/markdown":   {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/msword": {},
}

// Split cuts text into windows of chunkSize runes, advancing by
// chunkSize-overlap runes until the next start reaches the end of the text.
// Consecutive windows share overlap runes and the last window may be shorter.
// Blank text yields no chunks.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, apperr.InvalidArgument("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, apperr.InvalidArgument("chunk overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	if strings.TrimSpace(text) == "" {
		return []string{}, nil
	}

	runes := []rune(text)
	step := chunkSize - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}

// IsSupported reports whether mimeType is one of the ingestible types.
// Parameters such as "; charset=utf-8" are ignored.
func IsSupported(mimeType string) bool {
	mt := mimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	mt = strings.ToLower(strings.TrimSpace(mt))
	if mt == "" {
		return false
	}
	_, ok := supportedMIMETypes[mt]
	return ok
}
