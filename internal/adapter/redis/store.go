package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/couchcryptid/storm-data-sync/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint passed to SCAN.
const scanCount = 200

// Store implements store.EntityStore with one JSON value per key under a
// namespace, e.g. "storm:event:KSBY-TO-WARNING-0015-25".
type Store[T any] struct {
	client    goredis.UniversalClient
	namespace string
}

// NewStore creates a store whose keys are prefixed with "<prefix>:<kind>:".
func NewStore[T any](client goredis.UniversalClient, prefix, kind string) *Store[T] {
	return &Store[T]{client: client, namespace: prefix + ":" + kind + ":"}
}

var _ store.EntityStore[domain.Event] = (*Store[domain.Event])(nil)

// Create uses SETNX so concurrent creates of one key have a single winner.
func (s *Store[T]) Create(ctx context.Context, key string, v T) (store.CreateResult[T], error) {
	data, err := json.Marshal(v)
	if err != nil {
		return store.CreateResult[T]{}, fmt.Errorf("encode %s: %w", key, err)
	}

	ok, err := s.client.SetNX(ctx, s.namespace+key, data, 0).Result()
	if err != nil {
		return store.CreateResult[T]{}, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if ok {
		return store.CreateResult[T]{Created: true}, nil
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return store.CreateResult[T]{}, err
	}
	return store.CreateResult[T]{Existing: existing}, nil
}

func (s *Store[T]) Get(ctx context.Context, key string) (T, error) {
	var out T
	data, err := s.client.Get(ctx, s.namespace+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return out, domain.NotFoundf("key %s", key)
	}
	if err != nil {
		return out, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// Update uses SET XX so it never creates a record.
func (s *Store[T]) Update(ctx context.Context, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ok, err := s.client.SetXX(ctx, s.namespace+key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setxx %s: %w", key, err)
	}
	if !ok {
		return domain.NotFoundf("key %s", key)
	}
	return nil
}

func (s *Store[T]) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.namespace+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// List walks matching keys with SCAN and loads them in MGET batches.
func (s *Store[T]) List(ctx context.Context, prefix string) ([]T, error) {
	var (
		out    []T
		cursor uint64
	)
	seen := make(map[string]struct{})
	match := s.namespace + prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", match, err)
		}
		keys = unseen(seen, keys)
		if len(keys) > 0 {
			batch, err := s.load(ctx, keys)
			if err != nil {
				return nil, err
			}
			out = append(out, batch...)
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// unseen drops keys already recorded in seen and records the rest. SCAN may
// return a key more than once while the keyspace is rehashing.
func unseen(seen map[string]struct{}, keys []string) []string {
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func (s *Store[T]) load(ctx context.Context, keys []string) ([]T, error) {
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([]T, 0, len(values))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}
