package pdfextract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var ErrNoPages = errors.New("pdf has no pages")

// Info is what a structural read of a PDF reveals without rendering it.
type Info struct {
	Pages int
}

// Inspect parses the cross-reference table and page tree of b.
// The parser panics on some malformed inputs; those are reported as errors.
func Inspect(b []byte) (info Info, err error) {
	if len(b) == 0 {
		return Info{}, errors.New("pdf is empty")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return Info{}, err
	}
	pages := reader.NumPage()
	if pages == 0 {
		return Info{}, ErrNoPages
	}
	return Info{Pages: pages}, nil
}
