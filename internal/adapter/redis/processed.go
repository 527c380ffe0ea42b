package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ProcessedSet implements store.ProcessedSet with one Redis set per scope.
type ProcessedSet struct {
	client goredis.UniversalClient
	prefix string
}

// NewProcessedSet creates a set rooted at "<prefix>:processed:".
func NewProcessedSet(client goredis.UniversalClient, prefix string) *ProcessedSet {
	return &ProcessedSet{client: client, prefix: prefix + ":processed:"}
}

func (p *ProcessedSet) IsProcessed(ctx context.Context, scope, id string) (bool, error) {
	ok, err := p.client.SIsMember(ctx, p.prefix+scope, id).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember %s: %w", scope, err)
	}
	return ok, nil
}

func (p *ProcessedSet) MarkProcessed(ctx context.Context, scope, id string) error {
	if err := p.client.SAdd(ctx, p.prefix+scope, id).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", scope, err)
	}
	return nil
}

// Watermarks implements store.Watermarks as RFC 3339 strings.
type Watermarks struct {
	client goredis.UniversalClient
	prefix string
}

// NewWatermarks creates watermarks rooted at "<prefix>:watermark:".
func NewWatermarks(client goredis.UniversalClient, prefix string) *Watermarks {
	return &Watermarks{client: client, prefix: prefix + ":watermark:"}
}

func (w *Watermarks) Get(ctx context.Context, name string) (time.Time, bool, error) {
	s, err := w.client.Get(ctx, w.prefix+name).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get watermark %s: %w", name, err)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %s: %w", name, err)
	}
	return t, true, nil
}

func (w *Watermarks) Set(ctx context.Context, name string, t time.Time) error {
	if err := w.client.Set(ctx, w.prefix+name, t.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("redis set watermark %s: %w", name, err)
	}
	return nil
}
