package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"attendease/internal/model"
)

// Store keeps alerts until they expire.
type Store interface {
	Add(ctx context.Context, a model.Alert) error
	// Active returns alerts that have not expired at now, newest first.
	Active(ctx context.Context, now time.Time) ([]model.Alert, error)
}

const (
	keyPrefix = "alert:"
	indexKey  = "alerts:index"
)

// RedisStore keeps each alert under its own key with a TTL and indexes ids
// in a sorted set scored by expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Add(ctx context.Context, a model.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	ttl := time.Until(a.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyPrefix+a.ID, payload, ttl)
		p.ZAdd(ctx, indexKey, redis.Z{Score: float64(a.ExpiresAt.UnixMilli()), Member: a.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add alert: %w", err)
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context, now time.Time) ([]model.Alert, error) {
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, indexKey, "-inf", cutoff).Err(); err != nil {
		return nil, fmt.Errorf("redis prune alerts: %w", err)
	}
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list alerts: %w", err)
	}
	out := []model.Alert{}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get alerts: %w", err)
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var a model.Alert
		if err := json.Unmarshal([]byte(str), &a); err != nil {
			return nil, err
		}
		if a.ExpiresAt.After(now) {
			out = append(out, a)
		}
	}
	newestFirst(out)
	return out, nil
}

// MemoryStore keeps alerts in process.
type MemoryStore struct {
	mu     sync.Mutex
	alerts []model.Alert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *MemoryStore) Active(_ context.Context, now time.Time) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.alerts[:0]
	for _, a := range s.alerts {
		if a.ExpiresAt.After(now) {
			live = append(live, a)
		}
	}
	s.alerts = live
	out := append([]model.Alert{}, live...)
	newestFirst(out)
	return out, nil
}

func newestFirst(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
}
