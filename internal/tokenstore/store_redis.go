package tokenstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"gatehouse/pkg/platform/sentinel"
)

// DefaultRedisKey is the hash key credentials live under when no key is
// configured. One client identity per key; multi-account deployments pass
// their own key per account.
const DefaultRedisKey = "gatehouse:credentials"

// RedisStore keeps credentials in a redis hash so several client instances
// (or tabs behind a shared agent) observe the same session.
type RedisStore struct {
	client *redis.Client
	key    string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKey overrides the hash key credentials are stored under.
func WithKey(key string) RedisOption {
	return func(s *RedisStore) { s.key = key }
}

// NewRedis constructs a store on top of an existing redis client.
func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, key: DefaultRedisKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Save(ctx context.Context, creds Credentials) error {
	err := s.client.HSet(ctx, s.key,
		FieldToken, creds.Token,
		FieldUserID, creds.UserID,
		FieldRole, creds.Role,
	).Err()
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*Credentials, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if fields[FieldToken] == "" {
		return nil, fmt.Errorf("credentials: %w", sentinel.ErrNotFound)
	}
	return &Credentials{
		Token:  fields[FieldToken],
		UserID: fields[FieldUserID],
		Role:   fields[FieldRole],
	}, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
