package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one player's abilities in Redis, one hash per combo key
// plus an index set, for deployments where several processes share a cache.
// Records live under abilities:{player}:combo:{key} so no combo key can
// collide with abilities:{player}:index.
type RedisStore struct {
	client   *redis.Client
	playerID string
	now      func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns the store for playerID. The client is shared and is
// not closed by Close.
func NewRedisStore(client *redis.Client, playerID string) (*RedisStore, error) {
	if !ValidPlayerID(playerID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlayer, playerID)
	}
	return &RedisStore{client: client, playerID: playerID, now: time.Now}, nil
}

func (s *RedisStore) recordKey(comboKey string) string {
	return fmt.Sprintf("abilities:%s:combo:%s", s.playerID, comboKey)
}

func (s *RedisStore) indexKey() string {
	return fmt.Sprintf("abilities:%s:index", s.playerID)
}

func (s *RedisStore) Get(ctx context.Context, comboKey string) (*CachedAbility, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(comboKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get ability %s: %w", comboKey, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeHash(comboKey, fields)
}

func (s *RedisStore) Put(ctx context.Context, comboKey, abilityJSON string, version int) error {
	if comboKey == "" {
		return ErrEmptyKey
	}
	now := toMillis(s.now())
	key := s.recordKey(comboKey)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key, "ability_json", abilityJSON, "version", version, "last_used", now)
		pipe.HIncrBy(ctx, key, "use_count", 1)
		pipe.SAdd(ctx, s.indexKey(), comboKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put ability %s: %w", comboKey, err)
	}
	return nil
}

func (s *RedisStore) RecordUse(ctx context.Context, comboKey string) error {
	key := s.recordKey(comboKey)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis record use %s: %w", comboKey, err)
	}
	if exists == 0 {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "use_count", 1)
		pipe.HSet(ctx, key, "last_used", toMillis(s.now()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record use %s: %w", comboKey, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]CachedAbility, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list abilities: %w", err)
	}
	var out []CachedAbility
	for _, k := range keys {
		rec, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].LastUsed.After(out[j].LastUsed)
		}
		return out[i].ComboKey < out[j].ComboKey
	})
	return out, nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	list, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Count: len(list)}
	for _, rec := range list {
		st.TotalUses += rec.UseCount
	}
	return st, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, s.recordKey(k))
	}
	del = append(del, s.indexKey())
	if err := s.client.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error { return nil }

func decodeHash(comboKey string, fields map[string]string) (*CachedAbility, error) {
	var nums [4]int64
	for i, name := range []string{"version", "created_at", "last_used", "use_count"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s field on %s: %w", name, comboKey, err)
		}
		nums[i] = v
	}
	return &CachedAbility{
		ComboKey:    comboKey,
		AbilityJSON: fields["ability_json"],
		Version:     int(nums[0]),
		CreatedAt:   fromMillis(nums[1]),
		LastUsed:    fromMillis(nums[2]),
		UseCount:    int(nums[3]),
	}, nil
}
