package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// pdfText extracts the plain text layer of a PDF. A PDF without a text layer
// (scanned images) yields an empty string.
func pdfText(b []byte) (string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrUnreadable, err)
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", ErrUnreadable, err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %v", ErrUnreadable, err)
	}
	return string(out), nil
}
