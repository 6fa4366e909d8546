// Package artifact validates compiled PDF output. The engine exiting zero is
// not proof the artifact is usable; a truncated write still leaves a file.
package artifact

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageCount parses data as a PDF and returns its page count. An error means
// the bytes are not a well-formed PDF document.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty artifact")
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, fmt.Errorf("artifact missing PDF header")
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parse artifact: %w", err)
	}
	n := reader.NumPage()
	if n < 1 {
		return 0, fmt.Errorf("artifact has no pages")
	}
	return n, nil
}
