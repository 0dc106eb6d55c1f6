package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"backcoffee-chat/internal/models"
)

const onlineKey = "chat:online"

// RedisPresence mirrors registered users into a Redis hash of userId to role.
type RedisPresence struct {
	client *redis.Client
	key    string
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client, key: onlineKey}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (p *RedisPresence) Online(ctx context.Context, userID string, role models.Role) error {
	return p.client.HSet(ctx, p.key, userID, string(role)).Err()
}

func (p *RedisPresence) Offline(ctx context.Context, userID string) error {
	return p.client.HDel(ctx, p.key, userID).Err()
}

func (p *RedisPresence) List(ctx context.Context) (map[string]models.Role, error) {
	raw, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	out := make(map[string]models.Role, len(raw))
	for userID, role := range raw {
		out[userID] = models.Role(role)
	}
	return out, nil
}

// Reset clears entries left by a previous process.
func (p *RedisPresence) Reset(ctx context.Context) error {
	return p.client.Del(ctx, p.key).Err()
}
