package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"pagewise/internal/ai"
	"pagewise/internal/model"
	"pagewise/internal/pkg/apperr"
	"pagewise/internal/pkg/keylock"
)

const (
	defaultHistoryWindow = 15
	emptyReply           = "The model returned an empty response."
)

// ChatService answers questions about a session's document and appends each
// exchange to its thread. Turns of one session are serialized in-process and
// appended atomically in storage.
type ChatService struct {
	sessions  SessionStore
	threads   ThreadStore
	assistant ChatAssistant
	cache     TurnWindowCache
	activity  *activityRecorder
	locks     *keylock.KeyLock
	window    int
	log       *zap.Logger
}

type SendMessageInput struct {
	UserID    uint
	SessionID uint
	Message   string
}

type SendMessageResult struct {
	Reply     string         `json:"reply"`
	Turn      model.ChatTurn `json:"turn"`
	TurnCount int            `json:"turn_count"`
}

func NewChatService(
	sessions SessionStore,
	threads ThreadStore,
	assistant ChatAssistant,
	cache TurnWindowCache,
	publisher ActivityPublisher,
	window int,
	log *zap.Logger,
) *ChatService {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	log = log.Named("chat")
	return &ChatService{
		sessions:  sessions,
		threads:   threads,
		assistant: assistant,
		cache:     cache,
		activity:  newActivityRecorder(sessions, publisher, log),
		locks:     keylock.New(),
		window:    window,
		log:       log,
	}
}

func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error) {
	return s.turn(ctx, in, func(grounding string, history []ai.Turn, question string) (string, error) {
		return s.assistant.Answer(ctx, grounding, history, question)
	})
}

// StreamMessage is SendMessage with the reply delivered in chunks. The turn
// is appended once the stream completes.
func (s *ChatService) StreamMessage(ctx context.Context, in SendMessageInput, onChunk func(string) error) (*SendMessageResult, error) {
	return s.turn(ctx, in, func(grounding string, history []ai.Turn, question string) (string, error) {
		return s.assistant.StreamAnswer(ctx, grounding, history, question, onChunk)
	})
}

type answerFunc func(grounding string, history []ai.Turn, question string) (string, error)

// Admit runs the checks a turn must pass before any answer is requested, so
// streaming callers can reject a request before committing a response.
func (s *ChatService) Admit(ctx context.Context, in SendMessageInput) error {
	_, _, err := s.admit(ctx, in)
	return err
}

func (s *ChatService) admit(ctx context.Context, in SendMessageInput) (*model.Session, string, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, "", apperr.MissingInput("message is empty")
	}
	session, err := loadOwnedSession(ctx, s.sessions, in.UserID, in.SessionID)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(session.OCRText) == "" {
		return nil, "", apperr.New(apperr.KindMissingGroundingDocument, "session has no extracted text", nil)
	}
	return session, message, nil
}

func (s *ChatService) turn(ctx context.Context, in SendMessageInput, answer answerFunc) (*SendMessageResult, error) {
	session, message, err := s.admit(ctx, in)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(session.ID)
	defer unlock()

	thread, err := s.threads.GetBySessionID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, apperr.New(apperr.KindNotFound, "chat thread not found", nil)
	}

	history, err := s.recentTurns(ctx, thread)
	if err != nil {
		return nil, err
	}

	reply, err := answer(session.GroundingText(), toAITurns(history), message)
	if err != nil {
		s.log.Warn("answer failed", zap.Uint("session_id", session.ID), zap.Error(err))
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = emptyReply
	}

	appended, err := s.threads.AppendTurn(ctx, thread.ID, message, reply)
	if err != nil {
		return nil, err
	}
	s.refreshWindow(ctx, thread.ID, history, *appended)
	s.activity.record(ctx, session.ID)

	s.log.Info("turn appended",
		zap.Uint("session_id", session.ID),
		zap.Uint("thread_id", thread.ID),
		zap.Int("seq", appended.Seq),
		zap.Int("context_turns", len(history)))

	return &SendMessageResult{Reply: reply, Turn: *appended, TurnCount: appended.Seq}, nil
}

// ListTurns returns the whole thread in order.
func (s *ChatService) ListTurns(ctx context.Context, userID, sessionID uint) ([]model.ChatTurn, error) {
	if _, err := loadOwnedSession(ctx, s.sessions, userID, sessionID); err != nil {
		return nil, err
	}
	thread, err := s.threads.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, apperr.New(apperr.KindNotFound, "chat thread not found", nil)
	}
	return s.threads.ListTurns(ctx, thread.ID)
}

func (s *ChatService) recentTurns(ctx context.Context, thread *model.ChatThread) ([]model.ChatTurn, error) {
	if s.cache != nil {
		turns, hit, err := s.cache.GetWindow(ctx, thread.ID, thread.TurnCount)
		if err != nil {
			s.log.Warn("read turn window failed", zap.Uint("thread_id", thread.ID), zap.Error(err))
		} else if hit {
			return trimTurns(turns, s.window), nil
		}
	}

	turns, err := s.threads.ListRecentTurns(ctx, thread.ID, s.window)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetWindow(ctx, thread.ID, turns); err != nil {
			s.log.Warn("write turn window failed", zap.Uint("thread_id", thread.ID), zap.Error(err))
		}
	}
	return turns, nil
}

// refreshWindow extends the cached window when the new turn directly follows
// it and drops it otherwise.
func (s *ChatService) refreshWindow(ctx context.Context, threadID uint, history []model.ChatTurn, appended model.ChatTurn) {
	if s.cache == nil {
		return
	}
	prev := 0
	if len(history) > 0 {
		prev = history[len(history)-1].Seq
	}

	var err error
	if appended.Seq == prev+1 {
		next := make([]model.ChatTurn, 0, len(history)+1)
		next = append(next, history...)
		next = append(next, appended)
		err = s.cache.SetWindow(ctx, threadID, trimTurns(next, s.window))
	} else {
		err = s.cache.DeleteWindow(ctx, threadID)
	}
	if err != nil {
		s.log.Warn("refresh turn window failed", zap.Uint("thread_id", threadID), zap.Error(err))
	}
}

func trimTurns(turns []model.ChatTurn, limit int) []model.ChatTurn {
	if limit <= 0 || limit >= len(turns) {
		return turns
	}
	return turns[len(turns)-limit:]
}

func toAITurns(turns []model.ChatTurn) []ai.Turn {
	out := make([]ai.Turn, len(turns))
	for i, t := range turns {
		out[i] = ai.Turn{Message: t.Message, Reply: t.Reply}
	}
	return out
}
