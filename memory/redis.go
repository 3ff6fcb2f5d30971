package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MaxEntries bounds the list kept per user.
	MaxEntries = 200
	entryTTL   = 30 * 24 * time.Hour
)

// RedisStore keeps each user's entries in a capped Redis list.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(c *redis.Client) *RedisStore {
	return &RedisStore{client: c, prefix: "tomato:memory:"}
}

// Key is the list key for userID.
func (s *RedisStore) Key(userID string) string {
	return s.prefix + userID
}

// Append pushes entries and trims the list to MaxEntries.
func (s *RedisStore) Append(ctx context.Context, userID string, entries ...Entry) error {
	if userID == "" || len(entries) == 0 {
		return nil
	}
	vals := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		if e.At.IsZero() {
			e.At = time.Now().UTC()
		}
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode memory entry: %w", err)
		}
		vals = append(vals, b)
	}
	key := s.Key(userID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, vals...)
		p.LTrim(ctx, key, -MaxEntries, -1)
		p.Expire(ctx, key, entryTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis memory append: %w", err)
	}
	return nil
}

// Search reads the user's list and ranks it against query.
func (s *RedisStore) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	raw, err := s.client.LRange(ctx, s.Key(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis memory search: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if json.Unmarshal([]byte(r), &e) == nil && e.Text != "" {
			entries = append(entries, e)
		}
	}
	return Rank(query, entries, limit), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
