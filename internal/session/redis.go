package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tasktracker/internal/logging"
	"tasktracker/internal/model"
)

type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

func OpenRedis(ctx context.Context, addr, password, key string, logger *zap.Logger) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis session backend requires REDIS_ADDR")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(client, key, logger), nil
}

func NewRedisStore(client *redis.Client, key string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, key: redisKey(key), logger: logging.OrNop(logger)}
}

func (s *RedisStore) Save(ctx context.Context, sess model.Session) error {
	data, err := encode(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context) (model.Session, bool, error) {
	value, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	sess, ok := decode(value, s.logger)
	return sess, ok, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(key string) string {
	return fmt.Sprintf("tasktracker:session:%s", key)
}
