package sessions

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore persists active sessions in Redis, for deployments where several
// SDK processes share one logical client context.
type RedisStore struct {
	rdb    *redis.Client
	codec  Codec
	prefix string
}

// NewRedisStore wraps an existing Redis client. prefix namespaces the keys;
// it defaults to "baas" when empty.
func NewRedisStore(rdb *redis.Client, codec Codec, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "baas"
	}
	return &RedisStore{rdb: rdb, codec: codec, prefix: prefix}
}

func (s *RedisStore) sessionKey(key string) string {
	return s.prefix + ":active_session:" + key
}

func (s *RedisStore) identityKey(key string) string {
	return s.prefix + ":active_identity:" + key
}

// GetActive returns the active session for key, or nil when none is stored.
func (s *RedisStore) GetActive(ctx context.Context, key string) (*Session, error) {
	data, err := s.rdb.Get(ctx, s.sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisStore.GetActive] read failed")
	}
	return s.codec.Decode(data)
}

// SetActive replaces the active session for key and returns the stored form
// re-read from Redis. A nil session clears the slot.
func (s *RedisStore) SetActive(ctx context.Context, key string, session *Session) (*Session, error) {
	if session == nil {
		if err := s.rdb.Del(ctx, s.sessionKey(key)).Err(); err != nil {
			return nil, errors.Wrap(err, "[RedisStore.SetActive] delete failed")
		}
		return nil, nil
	}

	data, err := s.codec.Encode(session)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, s.sessionKey(key), data, 0).Err(); err != nil {
		return nil, errors.Wrap(err, "[RedisStore.SetActive] write failed")
	}
	return s.GetActive(ctx, key)
}

// GetActiveIdentity returns the active social identity pointer for key.
func (s *RedisStore) GetActiveIdentity(ctx context.Context, key string) (*ActiveIdentity, error) {
	data, err := s.rdb.Get(ctx, s.identityKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[RedisStore.GetActiveIdentity] read failed")
	}
	var identity ActiveIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, errors.Wrap(err, "[RedisStore.GetActiveIdentity] failed to unmarshal identity")
	}
	return &identity, nil
}

// SetActiveIdentity replaces the active social identity pointer for key.
func (s *RedisStore) SetActiveIdentity(ctx context.Context, key string, identity *ActiveIdentity) error {
	if identity == nil {
		err := s.rdb.Del(ctx, s.identityKey(key)).Err()
		return errors.Wrap(err, "[RedisStore.SetActiveIdentity] delete failed")
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "[RedisStore.SetActiveIdentity] failed to marshal identity")
	}
	err = s.rdb.Set(ctx, s.identityKey(key), data, 0).Err()
	return errors.Wrap(err, "[RedisStore.SetActiveIdentity] write failed")
}
