package contract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 256

// RedisState keeps the treasury state in redis. Every key is stored under a
// namespace. The funds token is per engine, so only one engine may write a
// namespace at a time.
type RedisState struct {
	client    *redis.Client
	namespace string
}

// NewRedisState connects to the redis URL and checks the connection.
// Example payload: NewRedisState(ctx, "redis://localhost:6379/0", "treasury:")
func NewRedisState(ctx context.Context, url, namespace string) (*RedisState, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisState{client: client, namespace: namespace}, nil
}

func (s *RedisState) key(k []byte) string {
	return s.namespace + string(k)
}

func (s *RedisState) Get(ctx context.Context, key []byte) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (s *RedisState) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	pattern := escapeGlob(s.key(prefix)) + "*"
	keys := make([]string, 0)
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("redis mget: %w", err)
	}
	for i, k := range keys {
		// deleted between SCAN and MGET
		if values[i] == nil {
			continue
		}
		str, ok := values[i].(string)
		if !ok {
			return fmt.Errorf("redis mget: unexpected value type %T", values[i])
		}
		if err := fn([]byte(strings.TrimPrefix(k, s.namespace)), []byte(str)); err != nil {
			return err
		}
	}
	return nil
}

// Commit wraps the batch in MULTI/EXEC.
func (s *RedisState) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.ops {
			if op.delete {
				pipe.Del(ctx, s.key(op.key))
			} else {
				pipe.Set(ctx, s.key(op.key), op.value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}

func (s *RedisState) Close() error {
	return s.client.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
