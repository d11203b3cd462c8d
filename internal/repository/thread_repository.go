package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pagewise/internal/model"
)

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) GetBySessionID(ctx context.Context, sessionID uint) (*model.ChatThread, error) {
	var thread model.ChatThread
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&thread).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat thread failed: %w", err)
	}
	return &thread, nil
}

// AppendTurn adds one turn in a single transaction. Bumping the counter first
// takes the thread row lock, so concurrent appends are serialized by the
// database and each gets its own sequence number.
func (r *ThreadRepository) AppendTurn(ctx context.Context, threadID uint, message, reply string) (*model.ChatTurn, error) {
	var turn model.ChatTurn
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ChatThread{}).
			Where("id = ?", threadID).
			UpdateColumn("turn_count", gorm.Expr("turn_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("bump turn count failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("chat thread %d: %w", threadID, gorm.ErrRecordNotFound)
		}

		var thread model.ChatThread
		if err := tx.Select("turn_count").First(&thread, threadID).Error; err != nil {
			return fmt.Errorf("read turn count failed: %w", err)
		}

		turn = model.ChatTurn{
			ThreadID: threadID,
			Seq:      thread.TurnCount,
			Message:  message,
			Reply:    reply,
		}
		if err := tx.Create(&turn).Error; err != nil {
			return fmt.Errorf("create chat turn failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &turn, nil
}

func (r *ThreadRepository) ListTurns(ctx context.Context, threadID uint) ([]model.ChatTurn, error) {
	var turns []model.ChatTurn
	if err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("seq ASC").Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list chat turns failed: %w", err)
	}
	return turns, nil
}

// ListRecentTurns returns the last limit turns in ascending order.
func (r *ThreadRepository) ListRecentTurns(ctx context.Context, threadID uint, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	var turns []model.ChatTurn
	if err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("seq DESC").
		Limit(limit).
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list recent chat turns failed: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
