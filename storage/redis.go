package storage

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisSessionStore keeps one key per session. A zero ttl stores keys without expiry.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(ctx context.Context, url string, ttl time.Duration) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

func (rs *RedisSessionStore) Close() error {
	return rs.client.Close()
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (rs *RedisSessionStore) GetSession(ctx context.Context, id string) (*codenames.Session, error) {
	state, err := rs.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, wrapUnexpected(err)
	}
	return decodeSession(state)
}

func (rs *RedisSessionStore) SetSession(ctx context.Context, session *codenames.Session) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	if err := rs.client.Set(ctx, sessionKey(session.Id), state, rs.ttl).Err(); err != nil {
		return wrapUnexpected(err)
	}
	return nil
}

func (rs *RedisSessionStore) DeleteSession(ctx context.Context, id string) error {
	if err := rs.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return wrapUnexpected(err)
	}
	return nil
}
