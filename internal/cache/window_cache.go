package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pagewise/internal/model"
)

// TurnWindowCache keeps the trailing turns of each chat thread in Redis.
// A cached window is only valid while its last seq matches the thread's
// turn count, so appends from other processes invalidate it implicitly.
type TurnWindowCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewTurnWindowCache(client *redisv9.Client, ttl time.Duration) *TurnWindowCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TurnWindowCache{client: client, ttl: ttl}
}

// GetWindow returns the cached turns of threadID when they end at turnCount.
func (c *TurnWindowCache) GetWindow(ctx context.Context, threadID uint, turnCount int) ([]model.ChatTurn, bool, error) {
	raw, err := c.client.Get(ctx, c.windowKey(threadID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get turn window failed: %w", err)
	}

	var turns []model.ChatTurn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached turn window failed: %w", err)
	}
	if lastSeq(turns) != turnCount {
		return nil, false, nil
	}
	return turns, true, nil
}

func (c *TurnWindowCache) SetWindow(ctx context.Context, threadID uint, turns []model.ChatTurn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal turn window failed: %w", err)
	}
	if err := c.client.Set(ctx, c.windowKey(threadID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set turn window failed: %w", err)
	}
	return nil
}

func (c *TurnWindowCache) DeleteWindow(ctx context.Context, threadID uint) error {
	if err := c.client.Del(ctx, c.windowKey(threadID)).Err(); err != nil {
		return fmt.Errorf("redis delete turn window failed: %w", err)
	}
	return nil
}

func (c *TurnWindowCache) windowKey(threadID uint) string {
	return fmt.Sprintf("chat:window:%d", threadID)
}

func lastSeq(turns []model.ChatTurn) int {
	if len(turns) == 0 {
		return 0
	}
	return turns[len(turns)-1].Seq
}
