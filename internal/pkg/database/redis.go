package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisPingAttempts = 3
	redisPingBackoff  = 500 * time.Millisecond
)

// NewRedis connects to redisURL. An empty URL returns a nil client, which
// disables realtime notification fan-out.
func NewRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		log.Warn().Msg("Redis URL not configured, realtime notifications disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	// Only PUBLISH traffic.
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.DialTimeout = 3 * time.Second
	opt.ReadTimeout = 2 * time.Second
	opt.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opt)
	if err := ping(client); err != nil {
		client.Close()
		return nil, err
	}

	log.Info().Str("addr", opt.Addr).Int("db", opt.DB).Msg("Connected to Redis")
	return client, nil
}

func ping(client *redis.Client) error {
	var err error
	for attempt := 1; attempt <= redisPingAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("Redis ping failed")
		time.Sleep(redisPingBackoff)
	}
	return fmt.Errorf("redis unreachable after %d attempts: %w", redisPingAttempts, err)
}

// CloseRedis closes client if it is set
func CloseRedis(client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Redis connection")
		return
	}
	log.Info().Msg("Redis connection closed")
}
