package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisProvider reads the box credential records the platform API
// maintains at "<competition>:<team>:<box>:credentials" as a
// "username:password" string.
type RedisProvider struct {
	client      redis.Cmdable
	competition string
}

// NewRedisProvider builds a provider over an existing client.
func NewRedisProvider(client redis.Cmdable, competition string) *RedisProvider {
	return &RedisProvider{client: client, competition: competition}
}

// Lookup implements Provider.
func (p *RedisProvider) Lookup(ctx context.Context, team, box string) (Credentials, error) {
	key := fmt.Sprintf("%s:%s:%s:credentials", p.competition, team, box)
	val, err := p.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", key, err)
	}
	username, password, ok := strings.Cut(val, ":")
	if !ok {
		return Credentials{}, fmt.Errorf("malformed credentials at %s", key)
	}
	return Credentials{Username: username, Password: password}, nil
}
