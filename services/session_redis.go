package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github/itish2003/agriqa/models"

	goredis "github.com/redis/go-redis/v9"
)

// redisConversationLog keeps one Redis list per session. A whole exchange is
// pushed with a single RPUSH.
type redisConversationLog struct {
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedisConversationLog(rdb goredis.UniversalClient) ConversationLog {
	return &redisConversationLog{rdb: rdb, prefix: "agriqa:chat:"}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping: %w", ErrStorage, err)
	}
	return rdb, nil
}

type redisMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *redisConversationLog) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *redisConversationLog) Append(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		raw, err := json.Marshal(redisMessage{Role: m.Role, Content: m.Content, CreatedAt: now})
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, raw)
	}
	if err := r.rdb.RPush(ctx, r.key(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("%w: append to session %s: %w", ErrStorage, sessionID, err)
	}
	return nil
}

func (r *redisConversationLog) Read(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, err
	}
	raw, err := r.rdb.LRange(ctx, r.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read session %s: %w", ErrStorage, sessionID, err)
	}
	msgs := make([]models.ChatMessage, 0, len(raw))
	for i, item := range raw {
		var m redisMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("%w: decode message %d of session %s: %w", ErrStorage, i, sessionID, err)
		}
		msgs = append(msgs, models.ChatMessage{
			ID:        uint(i + 1),
			SessionID: sessionID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return msgs, nil
}

func (r *redisConversationLog) Clear(ctx context.Context, sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: clear session %s: %w", ErrStorage, sessionID, err)
	}
	return nil
}
