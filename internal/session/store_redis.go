package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/regforms/pkg/crypto"
)

const (
	defaultRedisPrefix  = "regforms:"
	defaultRedisLockTTL = 10 * time.Second
	redisLockRetry      = 25 * time.Millisecond
)

// insertScript writes the record only if the id is free and indexes it under the user.
// KEYS: session key, user index key. ARGV: payload, ttl ms, score, session id.
var insertScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
  redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// deleteScript removes the record when it still belongs to the given user.
// KEYS: session key, user index key. ARGV: user id, session id.
var deleteScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if raw then
  local rec = cjson.decode(raw)
  if rec.user_id ~= ARGV[1] then
    return 0
  end
  redis.call('DEL', KEYS[1])
end
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStoreOptions configures RedisStore.
type RedisStoreOptions struct {
	StoreOptions
	Prefix  string
	LockTTL time.Duration
}

// RedisStore keeps each session under its own key with native expiry and a per-user
// sorted set scored by creation time in milliseconds.
//
// Critical sections use a SET NX lock; they serialise admissions but are not
// transactional, so a failure midway through an eviction is not rolled back.
//
// The scripts touch a session key and its user index in one call, so the store needs a
// single-node client; cluster deployments would reject them with CROSSSLOT.
type RedisStore struct {
	client  *redis.Client
	opts    StoreOptions
	prefix  string
	lockTTL time.Duration
}

// NewRedisStore wraps a single-node go-redis client.
func NewRedisStore(client *redis.Client, opts RedisStoreOptions) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session store: redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultRedisLockTTL
	}
	return &RedisStore{
		client:  client,
		opts:    opts.StoreOptions.normalised(),
		prefix:  prefix,
		lockTTL: lockTTL,
	}, nil
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "user-sessions:" + userID
}

func (s *RedisStore) lockKey(userID string) string {
	return s.prefix + "user-lock:" + userID
}

func (s *RedisStore) Insert(ctx context.Context, record Record) error {
	remaining := record.ExpiresAt(s.opts.TTL).Sub(s.opts.Clock())
	if remaining <= 0 {
		return fmt.Errorf("redis store: record %q already expired", record.SessionID)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis store: marshal: %w", err)
	}

	created, err := insertScript.Run(ctx, s.client,
		[]string{s.sessionKey(record.SessionID), s.userKey(record.UserID)},
		payload,
		remaining.Milliseconds(),
		record.CreatedAt.UnixMilli(),
		record.SessionID,
	).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return ErrDuplicateSessionID
	}
	return nil
}

func (s *RedisStore) FindByUser(ctx context.Context, userID string) ([]Record, error) {
	userKey := s.userKey(userID)
	cutoff := s.opts.cutoff()

	if err := s.client.ZRemRangeByScore(ctx, userKey, "-inf", strconv.FormatInt(cutoff.UnixMilli(), 10)).Err(); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(values))
	var stale []any
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		if record.CreatedAt.After(cutoff) {
			out = append(out, record)
		}
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, userKey, stale...).Err()
	}

	sortOldestFirst(out)
	return out, nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID string) (Record, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	record, err := decodeRecord(raw)
	if err != nil {
		return Record{}, err
	}
	if !record.CreatedAt.After(s.opts.cutoff()) {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *RedisStore) DeleteByID(ctx context.Context, sessionID string) error {
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return err
	}
	return s.DeleteByUserAndSession(ctx, record.UserID, sessionID)
}

func (s *RedisStore) DeleteByUserAndSession(ctx context.Context, userID, sessionID string) error {
	return deleteScript.Run(ctx, s.client,
		[]string{s.sessionKey(sessionID), s.userKey(userID)},
		userID, sessionID,
	).Err()
}

// WithUserLock acquires the user's lock key, polling until ctx is done.
func (s *RedisStore) WithUserLock(ctx context.Context, userID string, fn func(Store) error) error {
	owner, err := crypto.GenerateToken(crypto.MinTokenLength)
	if err != nil {
		return err
	}
	key := s.lockKey(userID)

	for {
		acquired, err := s.client.SetNX(ctx, key, owner, s.lockTTL).Result()
		if err != nil {
			return err
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redisLockRetry):
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, s.client, []string{key}, owner).Err()
	}()

	return fn(s)
}

// Ping checks connectivity, used by the health endpoint.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeRecord(raw string) (Record, error) {
	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return Record{}, fmt.Errorf("redis store: decode: %w", err)
	}
	return record, nil
}
