package eventlog

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/carvectf/canary/internal/domain/model"
)

// RedisStore implements Store over Redis Streams. Appends use an
// application-supplied "<ms>-*" id so the server assigns the per-stream
// sequence suffix, which is exactly the entry-id scheme readers dedupe
// on.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects a store client. The connection is lazy; callers
// gate startup on Health.
func NewRedisStore(opts ...RedisOption) *RedisStore {
	s := &RedisStore{}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{})
	}

	return s
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithAddr points the store at host:port/db.
func WithAddr(addr string, db int) RedisOption {
	return func(s *RedisStore) {
		s.client = redis.NewClient(&redis.Options{Addr: addr, DB: db})
	}
}

// WithClient supplies an existing client (shared pools, tests).
func WithClient(client redis.UniversalClient) RedisOption {
	return func(s *RedisStore) {
		if client != nil {
			s.client = client
		}
	}
}

// Client exposes the underlying connection for collaborators sharing the
// store (credential lookups live in the same Redis).
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, stream string, tsMS int64, fields map[string]string) (model.EntryID, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     fmt.Sprintf("%d-*", tsMS),
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: xadd %s: %v", ErrUnavailable, stream, err)
	}
	return model.EntryID(id), nil
}

// Health implements Store.
func (s *RedisStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Subscribe implements Store using blocking XREAD.
func (s *RedisStore) Subscribe(ctx context.Context, stream string, sinceID model.EntryID) (<-chan Entry, error) {
	last := string(sinceID)
	if last == "" {
		last = "0"
	}
	out := make(chan Entry)
	go func() {
		defer close(out)
		for {
			res, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, last},
				Block:   0,
			}).Result()
			if err != nil {
				return
			}
			for _, str := range res {
				for _, msg := range str.Messages {
					fields := make(map[string]string, len(msg.Values))
					for k, v := range msg.Values {
						if sv, ok := v.(string); ok {
							fields[k] = sv
						}
					}
					select {
					case out <- Entry{ID: model.EntryID(msg.ID), Fields: fields}:
						last = msg.ID
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
