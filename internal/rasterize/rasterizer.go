package rasterize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"mime"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"

	"pagewise/internal/pkg/apperr"
	"pagewise/internal/pkg/pdfextract"
)

const pdfMediaType = "application/pdf"

type Config struct {
	DPI         float64
	JPEGQuality int
	MaxEdge     int
}

// Page is one rendered page, JPEG encoded. Number starts at 1.
type Page struct {
	Number int
	JPEG   []byte
	Width  int
	Height int
}

// Rasterizer renders PDF pages to JPEG images with MuPDF.
type Rasterizer struct {
	dpi     float64
	quality int
	maxEdge int
}

func New(cfg Config) *Rasterizer {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 90
	}
	return &Rasterizer{dpi: cfg.DPI, quality: cfg.JPEGQuality, maxEdge: cfg.MaxEdge}
}

// Validate checks the declared media type, the content signature and the PDF
// structure, and returns the page count.
func Validate(data []byte, contentType string) (int, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != pdfMediaType {
		return 0, apperr.InvalidInputKind(fmt.Sprintf("expected %s, got %q", pdfMediaType, contentType), err)
	}
	if !mimetype.Detect(data).Is(pdfMediaType) {
		return 0, apperr.InvalidInputKind("content is not a pdf", nil)
	}
	info, err := pdfextract.Inspect(data)
	if err != nil {
		return 0, apperr.InvalidInputKind("decode pdf", err)
	}
	return info.Pages, nil
}

// Validate is the package-level Validate, for callers holding a Rasterizer.
func (r *Rasterizer) Validate(data []byte, contentType string) (int, error) {
	return Validate(data, contentType)
}

// Rasterize renders every page in source order and hands each one to emit
// before rendering the next. It returns the number of pages emitted.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte, contentType string, emit func(Page) error) (int, error) {
	if _, err := Validate(data, contentType); err != nil {
		return 0, err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, apperr.InvalidInputKind("open pdf", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return 0, apperr.InvalidInputKind("pdf has no pages", nil)
	}

	for n := 0; n < total; n++ {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		img, err := doc.ImageDPI(n, r.dpi)
		if err != nil {
			return n, apperr.InvalidInputKind(fmt.Sprintf("render page %d", n+1), err)
		}
		page, err := r.encode(n+1, img)
		if err != nil {
			return n, err
		}
		if err := emit(page); err != nil {
			return n, err
		}
	}
	return total, nil
}

func (r *Rasterizer) encode(number int, img image.Image) (Page, error) {
	img = r.fit(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.quality}); err != nil {
		return Page{}, fmt.Errorf("encode page %d failed: %w", number, err)
	}
	b := img.Bounds()
	return Page{Number: number, JPEG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// fit scales img down so that its longer edge is at most maxEdge.
func (r *Rasterizer) fit(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if r.maxEdge <= 0 || longest <= r.maxEdge {
		return img
	}

	scale := float64(r.maxEdge) / float64(longest)
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
