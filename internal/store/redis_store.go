package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisDocumentStore keeps the document under a single redis key.
type RedisDocumentStore struct {
	client *redis.Client
	key    string
}

// NewRedisDocumentStore constructs the store.
func NewRedisDocumentStore(client *redis.Client, key string) *RedisDocumentStore {
	return &RedisDocumentStore{client: client, key: key}
}

func (s *RedisDocumentStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *RedisDocumentStore) Save(ctx context.Context, data []byte) error {
	return s.client.Set(ctx, s.key, data, 0).Err()
}
