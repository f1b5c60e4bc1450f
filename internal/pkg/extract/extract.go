// Package extract turns stored upload files into plain text for chunking.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MIMEPDF      = "application/pdf"
	MIMEText     = "text/plain"
	MIMEMarkdown = "text/markdown"
	MIMEDocx     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDoc      = "application/msword"
)

var (
	ErrUnsupported = errors.New("unsupported document type")
	ErrEmpty       = errors.New("document file is empty")
	ErrUnreadable  = errors.New("document is unreadable")
)

var extensionMIME = map[string]string{
	".pdf":      MIMEPDF,
	".txt":      MIMEText,
	".md":       MIMEMarkdown,
	".markdown": MIMEMarkdown,
	".docx":     MIMEDocx,
	".doc":      MIMEDoc,
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}\x{3000}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

type Extractor struct {
	maxBytes int64
}

// New returns an extractor that refuses files larger than maxBytes.
// A non-positive maxBytes disables the limit.
func New(maxBytes int64) *Extractor {
	return &Extractor{maxBytes: maxBytes}
}

// ExtractFile reads the file at path and returns its cleaned text. The MIME
// type is the one recorded at upload; when blank it is resolved from the file.
func (e *Extractor) ExtractFile(ctx context.Context, path, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrUnreadable, filepath.Base(path))
	}
	if info.Size() == 0 {
		return "", ErrEmpty
	}
	if e.maxBytes > 0 && info.Size() > e.maxBytes {
		return "", fmt.Errorf("%w: file is %d bytes, limit %d", ErrUnreadable, info.Size(), e.maxBytes)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = ResolveMIME(path, b)
	}
	return Extract(b, mimeType)
}

// Extract returns the cleaned text of an in-memory document.
func Extract(b []byte, mimeType string) (string, error) {
	if len(b) == 0 {
		return "", ErrEmpty
	}

	var (
		raw string
		err error
	)
	switch baseMIME(mimeType) {
	case MIMEPDF:
		raw, err = pdfText(b)
	case MIMEDocx:
		raw, err = docxText(b)
	case MIMEDoc:
		raw = docText(b)
	case MIMEText, MIMEMarkdown:
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: text is not valid utf-8", ErrUnreadable)
		}
		raw = string(b)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, mimeType)
	}
	if err != nil {
		return "", err
	}
	return Clean(raw), nil
}

// Clean collapses runs of horizontal whitespace, trims every line and keeps
// at most one blank line between paragraphs.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = horizontalSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ResolveMIME picks the MIME type for an upload. Known extensions win so that
// Markdown is not reported as plain text; otherwise the content is sniffed.
func ResolveMIME(fileName string, head []byte) string {
	if mt, ok := extensionMIME[strings.ToLower(filepath.Ext(fileName))]; ok {
		return mt
	}
	detected := mimetype.Detect(head)
	switch {
	case detected.Is(MIMEDocx):
		return MIMEDocx
	case detected.Is(MIMEDoc), detected.Is("application/x-ole-storage"):
		return MIMEDoc
	}
	return baseMIME(detected.String())
}

// MatchesContent reports whether the sniffed content agrees with mimeType.
// Text formats accept any text content.
func MatchesContent(mimeType string, head []byte) bool {
	detected := mimetype.Detect(head)
	switch baseMIME(mimeType) {
	case MIMEPDF:
		return detected.Is(MIMEPDF)
	case MIMEDocx:
		return detected.Is(MIMEDocx) || detected.Is("application/zip")
	case MIMEDoc:
		return detected.Is(MIMEDoc) || detected.Is("application/x-ole-storage")
	case MIMEText, MIMEMarkdown:
		for m := detected; m != nil; m = m.Parent() {
			if m.Is(MIMEText) {
				return true
			}
		}
		return false
	}
	return false
}

func baseMIME(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
