package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/evaproject/eva/internal/models"
)

// RedisSessions caches the most recent turns of each session in a Redis
// list, trimmed to maxTurns.
type RedisSessions struct {
	client   *redis.Client
	logger   *zap.Logger
	maxTurns int
}

// NewRedisSessions connects to Redis and verifies the connection.
func NewRedisSessions(ctx context.Context, addr string, db, maxTurns int, logger *zap.Logger) (*RedisSessions, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisSessions{client: client, logger: logger, maxTurns: maxTurns}, nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID + ":turns"
}

// AppendTurn pushes a turn onto the session's window, evicting the oldest
// beyond the cap.
func (r *RedisSessions) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := sessionKey(sessionID)
	pipe := r.client.Pipeline()
	pipe.LPush(ctx, key, data)
	if r.maxTurns > 0 {
		pipe.LTrim(ctx, key, 0, int64(r.maxTurns-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit turns in chronological order.
func (r *RedisSessions) RecentTurns(ctx context.Context, sessionID string, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		limit = r.maxTurns
	}

	raw, err := r.client.LRange(ctx, sessionKey(sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session turns: %w", err)
	}

	// List is newest first; build chronological output.
	turns := make([]models.Turn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var turn models.Turn
		if err := json.Unmarshal([]byte(raw[i]), &turn); err != nil {
			r.logger.Warn("skipping corrupt cached turn",
				zap.String("session", sessionID), zap.Error(err))
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Clear drops the session's cached window.
func (r *RedisSessions) Clear(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisSessions) Close() error {
	return r.client.Close()
}
