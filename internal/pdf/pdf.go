package pdfutil

import (
	"bytes"
	"errors"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNoPages is returned for a structurally valid PDF with zero pages.
var ErrNoPages = errors.New("pdf has no pages")

// PageCount opens PDF bytes with ledongthuc/pdf and returns the number of
// pages. Anything the reader cannot parse is an error.
func PageCount(data []byte) (n int, err error) {
	// the reader panics on some truncated trailers
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	if total < 1 {
		return 0, ErrNoPages
	}
	return total, nil
}
