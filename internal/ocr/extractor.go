package ocr

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusEmpty    Status = "empty"
	StatusFailed   Status = "failed"
	StatusFallback Status = "fallback"
)

// Result is the outcome for one page. Text is empty unless Status is ok or
// fallback; Err is set only when Status is failed.
type Result struct {
	Text   string
	Status Status
	Err    error
}

// Analyzer is the remote read-OCR capability.
type Analyzer interface {
	Analyze(ctx context.Context, imageURL string) (*AnalyzeResult, error)
}

// Transcriber turns a page image into text with a vision-capable model.
type Transcriber interface {
	Transcribe(ctx context.Context, imageURL string) (string, error)
}

// Extractor never returns an error: each page yields a tagged Result so one
// bad page degrades the document instead of aborting it.
type Extractor struct {
	analyzer Analyzer
	fallback Transcriber
	log      *zap.Logger
}

// NewExtractor builds an Extractor. fallback may be nil.
func NewExtractor(analyzer Analyzer, fallback Transcriber, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{analyzer: analyzer, fallback: fallback, log: log}
}

func (e *Extractor) Extract(ctx context.Context, imageURL string) Result {
	res, err := e.analyzer.Analyze(ctx, imageURL)
	if err == nil {
		text := res.Text()
		if strings.TrimSpace(text) == "" {
			return Result{Status: StatusEmpty}
		}
		return Result{Text: text, Status: StatusOK}
	}

	e.log.Warn("ocr page failed", zap.String("image_url", imageURL), zap.Error(err))
	if e.fallback == nil || ctx.Err() != nil {
		return Result{Status: StatusFailed, Err: err}
	}

	text, ferr := e.fallback.Transcribe(ctx, imageURL)
	if ferr != nil {
		e.log.Warn("vision fallback failed", zap.String("image_url", imageURL), zap.Error(ferr))
		return Result{Status: StatusFailed, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Status: StatusEmpty}
	}
	return Result{Text: text, Status: StatusFallback}
}

// Join concatenates page texts in order with a newline separator. Failed
// pages contribute an empty segment.
func Join(results []Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Text
	}
	return strings.Join(parts, "\n")
}
