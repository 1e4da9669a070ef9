package cache

import (
	"context"

	"echotree/infrastructure/logger"

	"github.com/redis/go-redis/v9"
)

func NewCache(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.GetLogger().WithField("error", err).WithField("addr", addr).Error("Error while pinging redis")
		return nil, err
	}
	return client, nil
}
