package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"pagewise/internal/ai"
	"pagewise/internal/model"
	"pagewise/internal/ocr"
	"pagewise/internal/pkg/apperr"
	"pagewise/internal/rasterize"
)

// Stage is a step of one ingestion run.
type Stage string

const (
	StageReceived       Stage = "received"
	StageRasterizing    Stage = "rasterizing"
	StageExtractingText Stage = "extracting_text"
	StageTransforming   Stage = "transforming"
	StageNaming         Stage = "naming"
	StagePersisted      Stage = "persisted"
	StageFailed         Stage = "failed"
)

const (
	defaultMaxNameAttempts = 20
	pageContentType        = "image/jpeg"
)

type IngestionOptions struct {
	OCRConcurrency  int
	DeriveKeywords  bool
	MaxNameAttempts int
}

type IngestionService struct {
	sessions   SessionStore
	store      ObjectStore
	rasterizer PageRasterizer
	pages      pageReader
	assistant  DocumentAssistant
	opts       IngestionOptions
	log        *zap.Logger
}

type IngestInput struct {
	UserID        uint
	PDFURL        string
	Specification string
}

type UploadInput struct {
	UserID        uint
	Filename      string
	ContentType   string
	Data          []byte
	Specification string
}

type PageOutcome struct {
	Page   int        `json:"page"`
	Status ocr.Status `json:"status"`
}

type IngestResult struct {
	Session *model.Session    `json:"session"`
	Thread  *model.ChatThread `json:"thread"`
	Pages   []PageOutcome     `json:"pages"`
}

func NewIngestionService(
	sessions SessionStore,
	store ObjectStore,
	rasterizer PageRasterizer,
	extractor TextExtractor,
	assistant DocumentAssistant,
	opts IngestionOptions,
	log *zap.Logger,
) *IngestionService {
	if opts.MaxNameAttempts <= 0 {
		opts.MaxNameAttempts = defaultMaxNameAttempts
	}
	return &IngestionService{
		sessions:   sessions,
		store:      store,
		rasterizer: rasterizer,
		pages:      pageReader{extractor: extractor, concurrency: opts.OCRConcurrency},
		assistant:  assistant,
		opts:       opts,
		log:        log.Named("ingestion"),
	}
}

// Ingest fetches the PDF at in.PDFURL and turns it into a persisted session.
func (s *IngestionService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	run := s.newRun(in.UserID, in.PDFURL)
	pdfURL := strings.TrimSpace(in.PDFURL)
	if pdfURL == "" {
		return nil, run.fail(StageReceived, apperr.MissingInput("pdf locator is required"))
	}
	if in.UserID == 0 {
		return nil, run.fail(StageReceived, apperr.MissingInput("user is required"))
	}

	run.enter(StageRasterizing)
	obj, err := s.store.Get(ctx, pdfURL)
	if err != nil {
		return nil, run.fail(StageRasterizing, err)
	}
	return s.ingest(ctx, run, in.UserID, pdfURL, obj.Data, obj.ContentType, in.Specification)
}

// UploadAndIngest stores an uploaded PDF first, then ingests it from memory.
func (s *IngestionService) UploadAndIngest(ctx context.Context, in UploadInput) (*IngestResult, error) {
	run := s.newRun(in.UserID, in.Filename)
	if len(in.Data) == 0 {
		return nil, run.fail(StageReceived, apperr.MissingInput("pdf file is required"))
	}
	if in.UserID == 0 {
		return nil, run.fail(StageReceived, apperr.MissingInput("user is required"))
	}
	if _, err := s.rasterizer.Validate(in.Data, in.ContentType); err != nil {
		return nil, run.fail(StageReceived, err)
	}

	filename := path.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == "/" {
		filename = "document.pdf"
	}
	sourceURL, err := s.store.Put(ctx, in.Data, filename, in.ContentType)
	if err != nil {
		return nil, run.fail(StageReceived, err)
	}
	run.log = run.log.With(zap.String("source", sourceURL))

	run.enter(StageRasterizing)
	return s.ingest(ctx, run, in.UserID, sourceURL, in.Data, in.ContentType, in.Specification)
}

func (s *IngestionService) ingest(
	ctx context.Context,
	run *ingestionRun,
	userID uint,
	sourceURL string,
	data []byte,
	contentType string,
	spec string,
) (*IngestResult, error) {
	base := pageBaseName(sourceURL)
	var imageURLs []string
	pageCount, err := s.rasterizer.Rasterize(ctx, data, contentType, func(p rasterize.Page) error {
		name := fmt.Sprintf("%s_page_%d.jpg", base, p.Number)
		locator, err := s.store.Put(ctx, p.JPEG, name, pageContentType)
		if err != nil {
			return err
		}
		imageURLs = append(imageURLs, locator)
		return nil
	})
	if err != nil {
		return nil, run.fail(StageRasterizing, err)
	}
	if pageCount != len(imageURLs) {
		return nil, run.fail(StageRasterizing, fmt.Errorf("rendered %d pages, stored %d", pageCount, len(imageURLs)))
	}
	run.log.Info("pages stored", zap.Int("pages", pageCount))

	run.enter(StageExtractingText)
	results, err := s.pages.read(ctx, imageURLs)
	if err != nil {
		return nil, run.fail(StageExtractingText, err)
	}
	ocrText := ocr.Join(results)
	failed := failedPages(results)
	if len(failed) > 0 {
		run.log.Warn("pages without text", zap.Ints("failed_pages", failed))
	}

	spec = strings.TrimSpace(spec)
	var document string
	if spec != "" {
		run.enter(StageTransforming)
		if strings.TrimSpace(ocrText) == "" {
			run.log.Warn("no text to transform")
		} else {
			document, err = s.assistant.Transform(ctx, ocrText, spec)
			if err != nil {
				return nil, run.fail(StageTransforming, err)
			}
		}
	}

	run.enter(StageNaming)
	session := &model.Session{
		UserID:        userID,
		Specification: spec,
		SourceURL:     sourceURL,
		ImageURLs:     imageURLs,
		OCRText:       ocrText,
		Document:      document,
		Keywords:      []string{},
		FailedPages:   failed,
	}
	name := ai.FallbackName
	if grounding := session.GroundingText(); strings.TrimSpace(grounding) != "" {
		name, err = s.assistant.DeriveName(ctx, grounding)
		if err != nil {
			return nil, run.fail(StageNaming, err)
		}
		if s.opts.DeriveKeywords {
			keywords, err := s.assistant.DeriveKeywords(ctx, ocrText)
			if err != nil {
				return nil, run.fail(StageNaming, err)
			}
			session.Keywords = keywords
		}
	}

	thread, err := s.persist(ctx, run, session, name)
	if err != nil {
		return nil, run.fail(StagePersisted, err)
	}
	run.log = run.log.With(zap.Uint("session_id", session.ID), zap.String("name", session.Name))
	run.enter(StagePersisted)

	outcomes := make([]PageOutcome, len(results))
	for i, r := range results {
		outcomes[i] = PageOutcome{Page: i + 1, Status: r.Status}
	}
	return &IngestResult{Session: session, Thread: thread, Pages: outcomes}, nil
}

// persist stores session under the first free variant of base.
func (s *IngestionService) persist(ctx context.Context, run *ingestionRun, session *model.Session, base string) (*model.ChatThread, error) {
	for attempt := 1; attempt <= s.opts.MaxNameAttempts; attempt++ {
		candidate := nameCandidate(base, attempt)
		taken, err := s.sessions.NameExists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		session.ID = 0
		session.Name = candidate
		thread, err := s.sessions.CreateWithThread(ctx, session)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			run.log.Info("name taken at insert, retrying", zap.String("candidate", candidate))
			continue
		}
		if err != nil {
			return nil, err
		}
		return thread, nil
	}
	return nil, apperr.New(apperr.KindNameCollision,
		fmt.Sprintf("no free name for %q after %d attempts", base, s.opts.MaxNameAttempts), nil)
}

// nameCandidate returns base for the first attempt and "base (n)" after,
// cut so the result fits model.MaxSessionNameLength.
func nameCandidate(base string, attempt int) string {
	base = ai.TruncateRunes(strings.TrimSpace(base), model.MaxSessionNameLength)
	if attempt <= 1 {
		return base
	}
	suffix := fmt.Sprintf(" (%d)", attempt)
	room := model.MaxSessionNameLength - utf8.RuneCountInString(suffix)
	return ai.TruncateRunes(base, room) + suffix
}

// pageBaseName derives a file stem for page images from the source locator.
func pageBaseName(sourceURL string) string {
	p := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Path != "" {
		p = u.Path
	}
	stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
	switch stem {
	case "", ".", "/", "view":
		return "page"
	}
	return stem
}

type ingestionRun struct {
	log     *zap.Logger
	started time.Time
	stage   Stage
}

func (s *IngestionService) newRun(userID uint, source string) *ingestionRun {
	run := &ingestionRun{
		log:     s.log.With(zap.Uint("user_id", userID), zap.String("source", source)),
		started: time.Now(),
	}
	run.enter(StageReceived)
	return run
}

func (r *ingestionRun) enter(stage Stage) {
	r.stage = stage
	r.log.Info("ingestion stage", zap.String("stage", string(stage)), zap.Duration("elapsed", time.Since(r.started)))
}

// fail logs the failed transition and prefixes err with the stage that broke.
func (r *ingestionRun) fail(stage Stage, err error) error {
	r.stage = StageFailed
	r.log.Warn("ingestion failed",
		zap.String("stage", string(StageFailed)),
		zap.String("failed_at", string(stage)),
		zap.Duration("elapsed", time.Since(r.started)),
		zap.Error(err))
	return fmt.Errorf("ingestion %s: %w", stage, err)
}
