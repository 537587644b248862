package database

import (
	"context"
	"time"

	"paygate-vip/infrastructure/config"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

func NewRedis(cfg config.RedisConfig) (*redis.Client, *redislock.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           0,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return client, redislock.New(client), nil
}
