package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tg-gemini-go/internal/model"

	"github.com/go-redis/redis/v8"
)

type redisHistoryRepository struct {
	redisClient *redis.Client
	maxTurns    int
	ttl         time.Duration
}

// NewRedisHistoryRepository 创建一个以 Redis 为后端的 HistoryRepository。
// 历史以 JSON 存储在 history:<user_id> 键下，每次写入刷新 TTL。
func NewRedisHistoryRepository(redisClient *redis.Client, maxTurns int, ttl time.Duration) HistoryRepository {
	return &redisHistoryRepository{
		redisClient: redisClient,
		maxTurns:    maxTurns,
		ttl:         ttl,
	}
}

func historyKey(userID int64) string {
	return fmt.Sprintf("history:%d", userID)
}

// Get 从 Redis 获取对话历史。键不存在时返回空历史。
func (r *redisHistoryRepository) Get(ctx context.Context, userID int64) ([]model.Turn, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(userID)).Result()
	if err == redis.Nil {
		return []model.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal([]byte(jsonData), &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return turns, nil
}

// Save 截断后把对话历史写入 Redis，并刷新过期时间。
func (r *redisHistoryRepository) Save(ctx context.Context, userID int64, turns []model.Turn) error {
	turns = truncate(turns, r.maxTurns)

	jsonData, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := r.redisClient.Set(ctx, historyKey(userID), jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set history: %w", err)
	}
	return nil
}

// Clear 删除用户的全部历史。键不存在也视为成功。
func (r *redisHistoryRepository) Clear(ctx context.Context, userID int64) error {
	if err := r.redisClient.Del(ctx, historyKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}
