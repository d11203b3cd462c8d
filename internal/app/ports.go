package app

import (
	"context"
	"time"

	"pagewise/internal/ai"
	"pagewise/internal/model"
	"pagewise/internal/objectstore"
	"pagewise/internal/ocr"
	"pagewise/internal/rasterize"
)

type SessionStore interface {
	CreateWithThread(ctx context.Context, session *model.Session) (*model.ChatThread, error)
	NameExists(ctx context.Context, name string) (bool, error)
	GetByID(ctx context.Context, id uint) (*model.Session, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.Session, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	Touch(ctx context.Context, id uint, at time.Time) error
	DeleteByIDAndUserID(ctx context.Context, id, userID uint) error
}

type ThreadStore interface {
	GetBySessionID(ctx context.Context, sessionID uint) (*model.ChatThread, error)
	AppendTurn(ctx context.Context, threadID uint, message, reply string) (*model.ChatTurn, error)
	ListTurns(ctx context.Context, threadID uint) ([]model.ChatTurn, error)
	ListRecentTurns(ctx context.Context, threadID uint, limit int) ([]model.ChatTurn, error)
}

type ObjectStore interface {
	Put(ctx context.Context, data []byte, filename, contentType string) (string, error)
	Get(ctx context.Context, locator string) (*objectstore.Object, error)
}

type PageRasterizer interface {
	Validate(data []byte, contentType string) (int, error)
	Rasterize(ctx context.Context, data []byte, contentType string, emit func(rasterize.Page) error) (int, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, imageURL string) ocr.Result
}

// DocumentAssistant is the completion-backed side of ingestion.
type DocumentAssistant interface {
	Transform(ctx context.Context, text, spec string) (string, error)
	DeriveName(ctx context.Context, text string) (string, error)
	DeriveKeywords(ctx context.Context, text string) ([]string, error)
}

// ChatAssistant answers grounded questions.
type ChatAssistant interface {
	Answer(ctx context.Context, grounding string, history []ai.Turn, question string) (string, error)
	StreamAnswer(ctx context.Context, grounding string, history []ai.Turn, question string, onChunk func(string) error) (string, error)
}

type ActivityPublisher interface {
	PublishActivity(ctx context.Context, event model.SessionActivity) error
}

type TurnWindowCache interface {
	GetWindow(ctx context.Context, threadID uint, turnCount int) ([]model.ChatTurn, bool, error)
	SetWindow(ctx context.Context, threadID uint, turns []model.ChatTurn) error
	DeleteWindow(ctx context.Context, threadID uint) error
}
