package normalize

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// decodePDF extracts the plain-text content stream of a PDF using a real
// PDF parser, replacing the teacher's BT/ET byte-scanning approach, which
// only handled the simplest single-stream PDFs.
func decodePDF(body []byte) (string, error) {
	r := bytes.NewReader(body)
	pr, err := pdf.NewReader(r, int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	reader, err := pr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}
