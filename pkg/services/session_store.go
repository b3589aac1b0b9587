package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"mindcheck-web/pkg/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound セッションが存在しない、または期限切れ
var ErrSessionNotFound = errors.New("session not found")

// SessionStore は訪問者ごとの回答状態を保存します。
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.SessionState, error)
	Save(ctx context.Context, state *models.SessionState) error
	Delete(ctx context.Context, id string) error
}

// NewSessionID 推測困難なセッションIDを生成
func NewSessionID() string {
	return uuid.New().String()
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore プロセス内のセッションストア
type MemorySessionStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemorySessionStore は新しいMemorySessionStoreを生成します。
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get は保存された状態のコピーを返します。
func (s *MemorySessionStore) Get(_ context.Context, id string) (*models.SessionState, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.now().After(entry.expiresAt) {
		// ロックを取り直す間に Save された場合は消さない
		s.mu.Lock()
		if cur, ok := s.entries[id]; ok && s.now().After(cur.expiresAt) {
			delete(s.entries, id)
		}
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	var state models.SessionState
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, fmt.Errorf("セッションの復元に失敗しました: %w", err)
	}
	return &state, nil
}

// Save は状態を保存し、有効期限を延長します。
func (s *MemorySessionStore) Save(_ context.Context, state *models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state.ID] = memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Delete セッションを削除
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Sweep は期限切れのセッションを削除し、削除件数を返します。
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper は ctx が終了するまで定期的に Sweep を実行します。
func (s *MemorySessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// RedisSessionStore は "session:<id>" キーにJSONで保存します。
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore は新しいRedisSessionStoreを生成します。
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*models.SessionState, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisからセッションを取得できません: %w", err)
	}
	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("セッションの復元に失敗しました: %w", err)
	}
	return &state, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, state *models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(state.ID), data, s.ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}
