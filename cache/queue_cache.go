package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"echofm/db"

	"github.com/go-redis/redis/v8"
)

// 播放队列快照的过期时间，听歌会话结束后自动清理
const queueTTL = 24 * time.Hour

// QueueSnapshot is the serialized form of a user's playback queue between
// requests.
type QueueSnapshot struct {
	IDs      []string `json:"ids"`
	ActiveID string   `json:"activeId,omitempty"`
}

// QueueKey 根据用户ID生成播放队列的Redis键
func QueueKey(userID int64) string {
	return fmt.Sprintf("player:queue:%d", userID)
}

// SaveQueue 保存用户的播放队列快照
func SaveQueue(ctx context.Context, userID int64, snap QueueSnapshot) error {
	if db.RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal queue snapshot: %w", err)
	}

	if err := db.RedisClient.Set(ctx, QueueKey(userID), payload, queueTTL).Err(); err != nil {
		return fmt.Errorf("failed to save queue snapshot: %w", err)
	}
	return nil
}

// LoadQueue 读取用户的播放队列快照，不存在时返回 nil
func LoadQueue(ctx context.Context, userID int64) (*QueueSnapshot, error) {
	if db.RedisClient == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	payload, err := db.RedisClient.Get(ctx, QueueKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load queue snapshot: %w", err)
	}

	var snap QueueSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteQueue 删除用户的播放队列快照
func DeleteQueue(ctx context.Context, userID int64) error {
	if db.RedisClient == nil {
		return fmt.Errorf("redis client not initialized")
	}
	if err := db.RedisClient.Del(ctx, QueueKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete queue snapshot: %w", err)
	}
	return nil
}
