package database

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"suggestbot/internal/database/models"
)

const redisKeyPrefix = "suggestion:"

// RedisStore implements Store on Redis. Records and settings are JSON values;
// ids come from a per-guild INCR counter and writes use WATCH/MULTI.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore parses redisURL, connects and pings the server.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

func (s *RedisStore) guildsKey() string { return s.prefix + "guilds" }

func (s *RedisStore) counterKey(guildID string) string {
	return s.prefix + guildID + ":next"
}

func (s *RedisStore) recordKey(guildID string, id int64) string {
	return s.prefix + guildID + ":rec:" + strconv.FormatInt(id, 10)
}

func (s *RedisStore) settingsKey(guildID string) string {
	return s.prefix + guildID + ":settings"
}

func (s *RedisStore) CreateSuggestion(ctx context.Context, sugg *models.Suggestion) error {
	id, err := s.client.Incr(ctx, s.counterKey(sugg.GuildID)).Result()
	if err != nil {
		return errors.Wrap(err, "allocate suggestion id")
	}
	sugg.ID = id
	sugg.Version = 1

	data, err := json.Marshal(sugg)
	if err != nil {
		return errors.Wrap(err, "marshal suggestion")
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(sugg.GuildID, id), data, 0)
		pipe.SAdd(ctx, s.guildsKey(), sugg.GuildID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "save suggestion %d", id)
	}
	return nil
}

func decodeSuggestion(raw string) (*models.Suggestion, error) {
	var sugg models.Suggestion
	if err := json.Unmarshal([]byte(raw), &sugg); err != nil {
		return nil, errors.Wrap(err, "unmarshal suggestion")
	}
	return &sugg, nil
}

func (s *RedisStore) GetSuggestion(ctx context.Context, guildID string, id int64) (*models.Suggestion, error) {
	raw, err := s.client.Get(ctx, s.recordKey(guildID, id)).Result()
	if err == redis.Nil {
		return nil, ErrSuggestionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "lookup suggestion %d", id)
	}
	return decodeSuggestion(raw)
}

func (s *RedisStore) ListSuggestions(ctx context.Context, guildID string) ([]models.Suggestion, error) {
	count, err := s.CountSuggestions(ctx, guildID)
	if err != nil || count == 0 {
		return nil, err
	}
	keys := make([]string, 0, count)
	for id := int64(1); id <= count; id++ {
		keys = append(keys, s.recordKey(guildID, id))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list suggestions")
	}
	out := make([]models.Suggestion, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		sugg, err := decodeSuggestion(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *sugg)
	}
	return out, nil
}

func (s *RedisStore) CountSuggestions(ctx context.Context, guildID string) (int64, error) {
	n, err := s.client.Get(ctx, s.counterKey(guildID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read suggestion counter")
	}
	return n, nil
}

// MutateSuggestion watches the record key; a concurrent write aborts the
// transaction and the whole read-modify-write is retried.
func (s *RedisStore) MutateSuggestion(ctx context.Context, guildID string, id int64, fn MutateFunc) (*models.Suggestion, error) {
	key := s.recordKey(guildID, id)
	var result models.Suggestion

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrSuggestionNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "lookup suggestion %d", id)
		}
		cur, err := decodeSuggestion(raw)
		if err != nil {
			return err
		}
		next, err := applyMutation(*cur, fn)
		if err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return errors.Wrap(err, "marshal suggestion")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return &result, nil
		}
		if err != redis.TxFailedErr {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrConflict, "suggestion %d", id)
}

func (s *RedisStore) GuildIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.guildsKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list guilds")
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) GetSettings(ctx context.Context, guildID string) (*models.Settings, error) {
	raw, err := s.client.Get(ctx, s.settingsKey(guildID)).Result()
	if err == redis.Nil {
		return &models.Settings{GuildID: guildID}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup settings")
	}
	var st models.Settings
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, errors.Wrap(err, "unmarshal settings")
	}
	return &st, nil
}

func (s *RedisStore) UpdateSettings(ctx context.Context, guildID string, fn func(*models.Settings) error) (*models.Settings, error) {
	key := s.settingsKey(guildID)
	var result models.Settings

	txf := func(tx *redis.Tx) error {
		cur := models.Settings{GuildID: guildID}
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			return errors.Wrap(err, "lookup settings")
		default:
			if err := json.Unmarshal([]byte(raw), &cur); err != nil {
				return errors.Wrap(err, "unmarshal settings")
			}
		}
		next := cur
		if err := fn(&next); err != nil {
			return err
		}
		next.GuildID = guildID
		next.Version = cur.Version + 1
		data, err := json.Marshal(next)
		if err != nil {
			return errors.Wrap(err, "marshal settings")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return &result, nil
		}
		if err != redis.TxFailedErr {
			return nil, err
		}
	}
	return nil, errors.Wrap(ErrConflict, "settings")
}

func (s *RedisStore) ResetGuild(ctx context.Context, guildID string) error {
	count, err := s.CountSuggestions(ctx, guildID)
	if err != nil {
		return err
	}
	keys := []string{s.counterKey(guildID), s.settingsKey(guildID)}
	for id := int64(1); id <= count; id++ {
		keys = append(keys, s.recordKey(guildID, id))
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, s.guildsKey(), guildID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "reset guild %s", guildID)
	}
	return nil
}

// ResetAll deletes every key under the store prefix.
func (s *RedisStore) ResetAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "scan keys")
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "delete keys")
	}
	return nil
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
