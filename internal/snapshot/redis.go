package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes. Snapshots live under layout:<session>:<name>; the names
// saved for a session are indexed in the set layouts:<session>, so listing
// never pattern-matches session ids.
const (
	KeyLayout = "layout:"
	KeyIndex  = "layouts:"
)

// RedisStore keeps snapshots in Redis so several dockbus instances can share
// saved layouts.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to url and verifies the connection with a ping.
func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		log.Printf("[Snapshot] ❌ Redis connection failed: %v", err)
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Println("[Snapshot] ✅ Redis connected")
	return &RedisStore{client: c}, nil
}

// LayoutKey returns the Redis key for a snapshot.
func LayoutKey(session, name string) string {
	return fmt.Sprintf("%s%s:%s", KeyLayout, session, name)
}

// IndexKey returns the Redis set holding the snapshot names of a session.
func IndexKey(session string) string {
	return KeyIndex + session
}

func (s *RedisStore) Save(ctx context.Context, session, name string, data []byte) error {
	if err := validateKey(session, name); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, LayoutKey(session, name), data, 0)
		pipe.SAdd(ctx, IndexKey(session), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", LayoutKey(session, name), err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, session, name string) ([]byte, error) {
	if err := validateKey(session, name); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, LayoutKey(session, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", LayoutKey(session, name), err)
	}
	return data, nil
}

func (s *RedisStore) List(ctx context.Context, session string) ([]string, error) {
	names, err := s.client.SMembers(ctx, IndexKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", IndexKey(session), err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Delete(ctx context.Context, session, name string) error {
	if err := validateKey(session, name); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, LayoutKey(session, name))
		pipe.SRem(ctx, IndexKey(session), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", LayoutKey(session, name), err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	log.Println("[Snapshot] Redis connection closed")
	return s.client.Close()
}
