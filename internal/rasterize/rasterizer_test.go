package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewise/internal/pkg/apperr"
)

func TestValidateRejectsDeclaredType(t *testing.T) {
	_, err := Validate([]byte("%PDF-1.7"), "text/html; charset=utf-8")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidInputKind)
}

func TestValidateRejectsMismatchedContent(t *testing.T) {
	_, err := Validate([]byte("<html><body>nope</body></html>"), "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrInvalidInputKind)
}

func TestValidateRejectsUndecodablePDF(t *testing.T) {
	_, err := Validate([]byte("%PDF-1.4\n1 0 obj garbage"), "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrInvalidInputKind)
}

func TestRasterizeStopsBeforeRenderingInvalidInput(t *testing.T) {
	r := New(Config{})
	called := false
	n, err := r.Rasterize(context.Background(), []byte("hello"), "text/plain", func(Page) error {
		called = true
		return nil
	})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, apperr.ErrInvalidInputKind)
	assert.False(t, called)
}

func TestFitScalesLongestEdge(t *testing.T) {
	r := New(Config{MaxEdge: 100})
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	src.Set(0, 0, color.White)

	out := r.fit(src)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 80, 60))
	assert.Same(t, small, r.fit(small))
}

func TestEncodeProducesJPEG(t *testing.T) {
	r := New(Config{JPEGQuality: 80})
	page, err := r.encode(3, image.NewRGBA(image.Rect(0, 0, 10, 20)))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Number)
	assert.Equal(t, 10, page.Width)
	assert.Equal(t, 20, page.Height)
	assert.Equal(t, []byte{0xFF, 0xD8}, page.JPEG[:2])
}

// buildPDF writes a minimal PDF with one blank page per width, each 72pt tall.
func buildPDF(t *testing.T, widths ...int) []byte {
	t.Helper()
	var buf bytes.Buffer
	offsets := make([]int, 0, len(widths)+2)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := range widths {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(widths)))
	for _, w := range widths {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 72] >>", w))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestRasterizeEmitsPagesInOrder(t *testing.T) {
	data := buildPDF(t, 72, 144, 216)
	r := New(Config{DPI: 72})

	var numbers, widths []int
	n, err := r.Rasterize(context.Background(), data, "application/pdf; charset=binary", func(p Page) error {
		numbers = append(numbers, p.Number)
		widths = append(widths, p.Width)
		assert.Equal(t, []byte{0xFF, 0xD8}, p.JPEG[:2])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, numbers)
	assert.Equal(t, []int{72, 144, 216}, widths)
}

func TestValidateCountsPages(t *testing.T) {
	pages, err := Validate(buildPDF(t, 72, 72), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
}

func TestRasterizeStopsOnEmitError(t *testing.T) {
	r := New(Config{DPI: 36})
	stop := errors.New("upload failed")

	var numbers []int
	n, err := r.Rasterize(context.Background(), buildPDF(t, 72, 72, 72), "application/pdf", func(p Page) error {
		numbers = append(numbers, p.Number)
		if p.Number == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{1, 2}, numbers)
}

func TestRasterizeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := New(Config{DPI: 36}).Rasterize(ctx, buildPDF(t, 72), "application/pdf", func(Page) error {
		t.Fatal("no page should be rendered")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}
