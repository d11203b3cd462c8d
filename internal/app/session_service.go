package app

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"pagewise/internal/model"
	"pagewise/internal/ocr"
	"pagewise/internal/pkg/apperr"
)

type SessionService struct {
	sessions  SessionStore
	threads   ThreadStore
	pages     pageReader
	assistant DocumentAssistant
	cache     TurnWindowCache
	activity  *activityRecorder
	log       *zap.Logger
}

// UpdateSessionInput describes a detail edit. Nil fields are left alone.
type UpdateSessionInput struct {
	UserID             uint
	SessionID          uint
	Name               *string
	Specification      *string
	Reextract          bool
	RegenerateKeywords bool
}

func NewSessionService(
	sessions SessionStore,
	threads ThreadStore,
	extractor TextExtractor,
	assistant DocumentAssistant,
	cache TurnWindowCache,
	publisher ActivityPublisher,
	ocrConcurrency int,
	log *zap.Logger,
) *SessionService {
	log = log.Named("sessions")
	return &SessionService{
		sessions:  sessions,
		threads:   threads,
		pages:     pageReader{extractor: extractor, concurrency: ocrConcurrency},
		assistant: assistant,
		cache:     cache,
		activity:  newActivityRecorder(sessions, publisher, log),
		log:       log,
	}
}

func (s *SessionService) List(ctx context.Context, userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, apperr.MissingInput("user is required")
	}
	return s.sessions.ListByUserID(ctx, userID)
}

func (s *SessionService) Get(ctx context.Context, userID, sessionID uint) (*model.Session, error) {
	session, err := loadOwnedSession(ctx, s.sessions, userID, sessionID)
	if err != nil {
		return nil, err
	}
	s.activity.record(ctx, sessionID)
	return session, nil
}

// Update applies a detail edit. Re-extraction runs first so a specification
// change in the same request transforms the fresh text.
func (s *SessionService) Update(ctx context.Context, in UpdateSessionInput) (*model.Session, error) {
	session, err := loadOwnedSession(ctx, s.sessions, in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	textChanged := false

	if in.Reextract {
		if len(session.ImageURLs) == 0 {
			return nil, apperr.MissingInput("session has no page images to re-extract")
		}
		results, err := s.pages.read(ctx, session.ImageURLs)
		if err != nil {
			return nil, err
		}
		session.OCRText = ocr.Join(results)
		session.FailedPages = failedPages(results)
		fields["ocr_text"] = session.OCRText
		fields["failed_pages"] = session.FailedPages
		textChanged = true
	}

	specChanged := false
	if in.Specification != nil {
		spec := strings.TrimSpace(*in.Specification)
		specChanged = spec != session.Specification
		session.Specification = spec
		fields["specification"] = spec
	}
	if specChanged || (textChanged && session.Specification != "") {
		document := ""
		if session.Specification != "" && strings.TrimSpace(session.OCRText) != "" {
			document, err = s.assistant.Transform(ctx, session.OCRText, session.Specification)
			if err != nil {
				return nil, err
			}
		}
		session.Document = document
		fields["document"] = document
	}

	if in.RegenerateKeywords {
		keywords := []string{}
		if strings.TrimSpace(session.OCRText) != "" {
			keywords, err = s.assistant.DeriveKeywords(ctx, session.OCRText)
			if err != nil {
				return nil, err
			}
		}
		session.Keywords = keywords
		fields["keywords"] = session.Keywords
	}

	if in.Name != nil {
		name, err := s.checkRename(ctx, session, *in.Name)
		if err != nil {
			return nil, err
		}
		if name != session.Name {
			session.Name = name
			fields["name"] = name
		}
	}

	if err := s.sessions.Update(ctx, session.ID, fields); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.New(apperr.KindNameCollision, "session name already taken", err)
		}
		return nil, err
	}
	s.log.Info("session updated", zap.Uint("session_id", session.ID), zap.Int("fields", len(fields)))
	s.activity.record(ctx, session.ID)
	return session, nil
}

func (s *SessionService) checkRename(ctx context.Context, session *model.Session, raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", apperr.MissingInput("session name is required")
	}
	if utf8.RuneCountInString(name) > model.MaxSessionNameLength {
		return "", apperr.InvalidInputKind("session name is longer than 100 characters", nil)
	}
	if name == session.Name {
		return name, nil
	}
	taken, err := s.sessions.NameExists(ctx, name)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.New(apperr.KindNameCollision, "session name already taken", nil)
	}
	return name, nil
}

// Delete removes the session together with its thread and turns.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID uint) error {
	if _, err := loadOwnedSession(ctx, s.sessions, userID, sessionID); err != nil {
		return err
	}
	thread, err := s.threads.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteByIDAndUserID(ctx, sessionID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindNotFound, "session not found", nil)
		}
		return err
	}
	if s.cache != nil && thread != nil {
		if err := s.cache.DeleteWindow(ctx, thread.ID); err != nil {
			s.log.Warn("drop turn window failed", zap.Uint("thread_id", thread.ID), zap.Error(err))
		}
	}
	s.log.Info("session deleted", zap.Uint("session_id", sessionID), zap.Uint("user_id", userID))
	return nil
}
