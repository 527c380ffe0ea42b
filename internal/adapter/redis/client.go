package redis

import (
	"context"
	"fmt"

	"github.com/couchcryptid/storm-data-sync/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: 10,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// Pinger reports Redis availability for readiness checks.
type Pinger struct {
	client goredis.UniversalClient
}

// NewPinger wraps a client for readiness probing.
func NewPinger(client goredis.UniversalClient) *Pinger {
	return &Pinger{client: client}
}

// CheckReadiness returns an error when Redis does not answer PING.
func (p *Pinger) CheckReadiness(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	return nil
}
