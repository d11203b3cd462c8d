package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"pagewise/internal/ocr"
)

// pageReader runs OCR over page images with bounded parallelism. Results
// keep the order of urls.
type pageReader struct {
	extractor   TextExtractor
	concurrency int
}

func (p pageReader) read(ctx context.Context, urls []string) ([]ocr.Result, error) {
	results := make([]ocr.Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	limit := p.concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, url := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.extractor.Extract(gctx, url)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// failedPages lists the 1-based numbers of pages whose OCR failed.
func failedPages(results []ocr.Result) []int {
	pages := []int{}
	for i, r := range results {
		if r.Status == ocr.StatusFailed {
			pages = append(pages, i+1)
		}
	}
	return pages
}
