package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutStore replica en el servidor los bloqueos por (caso, sospechoso).
// El estado autoritativo viaja con el cliente, pero el espejo evita que un
// cliente que descarta su estado se salte una ventana de bloqueo vigente.
type LockoutStore interface {
	Lock(ctx context.Context, caseID, suspect string, d time.Duration) error
	Until(ctx context.Context, caseID, suspect string) (time.Time, error)
}

func lockoutKey(caseID, suspect string) string {
	return caseID + ":" + suspect
}

type memoryLockoutStore struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemoryLockoutStore() LockoutStore {
	return &memoryLockoutStore{items: make(map[string]time.Time)}
}

func (s *memoryLockoutStore) Lock(_ context.Context, caseID, suspect string, d time.Duration) error {
	if strings.TrimSpace(caseID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[lockoutKey(caseID, suspect)] = time.Now().UTC().Add(d)
	return nil
}

func (s *memoryLockoutStore) Until(_ context.Context, caseID, suspect string) (time.Time, error) {
	if strings.TrimSpace(caseID) == "" {
		return time.Time{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.items[lockoutKey(caseID, suspect)]
	if !ok || time.Now().UTC().After(until) {
		delete(s.items, lockoutKey(caseID, suspect))
		return time.Time{}, nil
	}
	return until, nil
}

type redisLockoutStore struct {
	client *redis.Client
	prefix string
}

func NewRedisLockoutStore(client *redis.Client) LockoutStore {
	if client == nil {
		return nil
	}
	return &redisLockoutStore{client: client, prefix: "ask:lock:"}
}

func (s *redisLockoutStore) Lock(ctx context.Context, caseID, suspect string, d time.Duration) error {
	if strings.TrimSpace(caseID) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	until := time.Now().UTC().Add(d)
	return s.client.Set(ctx, s.prefix+lockoutKey(caseID, suspect), until.UnixMilli(), d).Err()
}

func (s *redisLockoutStore) Until(ctx context.Context, caseID, suspect string) (time.Time, error) {
	if strings.TrimSpace(caseID) == "" {
		return time.Time{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ms, err := s.client.Get(ctx, s.prefix+lockoutKey(caseID, suspect)).Int64()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
