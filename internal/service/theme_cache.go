package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThemeCache guarda el tema diario para que todos los jugadores reciban el
// mismo tema durante la fecha indicada (clave "YYYY-MM-DD").
type ThemeCache interface {
	Get(ctx context.Context, date string) (string, error)
	Set(ctx context.Context, date, theme string) error
}

type memoryThemeCache struct {
	mu    sync.Mutex
	date  string
	theme string
}

func NewMemoryThemeCache() ThemeCache {
	return &memoryThemeCache{}
}

func (c *memoryThemeCache) Get(_ context.Context, date string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.date != date {
		return "", nil
	}
	return c.theme, nil
}

func (c *memoryThemeCache) Set(_ context.Context, date, theme string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date = date
	c.theme = theme
	return nil
}

type redisThemeCache struct {
	client *redis.Client
	prefix string
}

func NewRedisThemeCache(client *redis.Client) ThemeCache {
	if client == nil {
		return nil
	}
	return &redisThemeCache{client: client, prefix: "theme:daily:"}
}

func (c *redisThemeCache) Get(ctx context.Context, date string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	theme, err := c.client.Get(ctx, c.prefix+date).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return theme, nil
}

func (c *redisThemeCache) Set(ctx context.Context, date, theme string) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	// 48h cubre la fecha actual en cualquier zona horaria del cliente.
	return c.client.Set(ctx, c.prefix+date, theme, 48*time.Hour).Err()
}
