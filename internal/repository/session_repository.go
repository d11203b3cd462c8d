package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pagewise/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateWithThread persists the session and its empty chat thread atomically.
// A name clash surfaces as gorm.ErrDuplicatedKey when the dialector translates errors.
func (r *SessionRepository) CreateWithThread(ctx context.Context, session *model.Session) (*model.ChatThread, error) {
	var thread model.ChatThread
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if session.LastActivity.IsZero() {
			session.LastActivity = time.Now()
		}
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create session failed: %w", err)
		}
		thread = model.ChatThread{SessionID: session.ID}
		if err := tx.Create(&thread).Error; err != nil {
			return fmt.Errorf("create chat thread failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *SessionRepository) NameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check session name failed: %w", err)
	}
	return count > 0, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uint) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.WithContext(ctx).
		Omit("ocr_text", "document").
		Where("user_id = ?", userID).
		Order("last_activity DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// Update writes the given columns of one session.
func (r *SessionRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("update session failed: %w", err)
	}
	return nil
}

// Touch moves last_activity forward; older timestamps are ignored.
func (r *SessionRepository) Touch(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND last_activity < ?", id, at).
		UpdateColumn("last_activity", at).Error; err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}

// DeleteByIDAndUserID removes the session with its thread and turns.
// It returns gorm.ErrRecordNotFound when the user owns no such session.
func (r *SessionRepository) DeleteByIDAndUserID(ctx context.Context, id, userID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Session{})
		if res.Error != nil {
			return fmt.Errorf("delete session failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		threadIDs := tx.Model(&model.ChatThread{}).Select("id").Where("session_id = ?", id)
		if err := tx.Where("thread_id IN (?)", threadIDs).Delete(&model.ChatTurn{}).Error; err != nil {
			return fmt.Errorf("delete chat turns failed: %w", err)
		}
		if err := tx.Where("session_id = ?", id).Delete(&model.ChatThread{}).Error; err != nil {
			return fmt.Errorf("delete chat thread failed: %w", err)
		}
		return nil
	})
}
