package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pagewise/internal/model"
	"pagewise/internal/pkg/apperr"
)

// loadOwnedSession tells a missing session apart from one owned by someone else.
func loadOwnedSession(ctx context.Context, sessions SessionStore, userID, sessionID uint) (*model.Session, error) {
	if userID == 0 || sessionID == 0 {
		return nil, apperr.MissingInput("user and session are required")
	}
	session, err := sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.New(apperr.KindNotFound, "session not found", nil)
	}
	if session.UserID != userID {
		return nil, apperr.New(apperr.KindNotAuthorized, "session belongs to another user", nil)
	}
	return session, nil
}

// activityRecorder moves a session's last-activity timestamp, through the
// broker when one is configured and directly otherwise.
type activityRecorder struct {
	sessions  SessionStore
	publisher ActivityPublisher
	now       func() time.Time
	log       *zap.Logger
}

func newActivityRecorder(sessions SessionStore, publisher ActivityPublisher, log *zap.Logger) *activityRecorder {
	return &activityRecorder{sessions: sessions, publisher: publisher, now: time.Now, log: log}
}

// record never fails the caller; a lost touch only affects list ordering.
func (r *activityRecorder) record(ctx context.Context, sessionID uint) {
	event := model.SessionActivity{SessionID: sessionID, At: r.now()}
	if r.publisher != nil {
		err := r.publisher.PublishActivity(ctx, event)
		if err == nil {
			return
		}
		r.log.Warn("publish activity failed, applying inline", zap.Uint("session_id", sessionID), zap.Error(err))
	}
	if err := r.sessions.Touch(ctx, sessionID, event.At); err != nil {
		r.log.Warn("touch session failed", zap.Uint("session_id", sessionID), zap.Error(err))
	}
}
