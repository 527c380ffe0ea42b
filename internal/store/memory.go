package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
)

// Memory is an EntityStore backed by a map. Values are stored as JSON so
// callers never share slices with the stored copy.
type Memory[T any] struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{data: make(map[string][]byte)}
}

func (m *Memory[T]) Create(_ context.Context, key string, v T) (CreateResult[T], error) {
	data, err := json.Marshal(v)
	if err != nil {
		return CreateResult[T]{}, fmt.Errorf("encode %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.data[key]; ok {
		var out T
		if err := json.Unmarshal(existing, &out); err != nil {
			return CreateResult[T]{}, fmt.Errorf("decode %s: %w", key, err)
		}
		return CreateResult[T]{Existing: out}, nil
	}
	m.data[key] = data
	return CreateResult[T]{Created: true}, nil
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, error) {
	m.mu.RLock()
	data, ok := m.data[key]
	m.mu.RUnlock()

	var out T
	if !ok {
		return out, domain.NotFoundf("key %s", key)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func (m *Memory[T]) Update(_ context.Context, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok {
		return domain.NotFoundf("key %s", key)
	}
	m.data[key] = data
	return nil
}

func (m *Memory[T]) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

// List returns matching records ordered by key.
func (m *Memory[T]) List(_ context.Context, prefix string) ([]T, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = m.data[k]
	}
	m.mu.RUnlock()

	out := make([]T, 0, len(raw))
	for i, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}

// MemoryProcessedSet is a ProcessedSet backed by maps.
type MemoryProcessedSet struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

// NewMemoryProcessedSet creates an empty set.
func NewMemoryProcessedSet() *MemoryProcessedSet {
	return &MemoryProcessedSet{sets: make(map[string]map[string]struct{})}
}

func (s *MemoryProcessedSet) IsProcessed(_ context.Context, scope, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[scope][id]
	return ok, nil
}

func (s *MemoryProcessedSet) MarkProcessed(_ context.Context, scope, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[scope] == nil {
		s.sets[scope] = make(map[string]struct{})
	}
	s.sets[scope][id] = struct{}{}
	return nil
}

// MemoryWatermarks is a Watermarks backed by a map.
type MemoryWatermarks struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

// NewMemoryWatermarks creates an empty watermark table.
func NewMemoryWatermarks() *MemoryWatermarks {
	return &MemoryWatermarks{marks: make(map[string]time.Time)}
}

func (w *MemoryWatermarks) Get(_ context.Context, name string) (time.Time, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.marks[name]
	return t, ok, nil
}

func (w *MemoryWatermarks) Set(_ context.Context, name string, t time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marks[name] = t
	return nil
}
