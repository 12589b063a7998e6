package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/game-server/internal/config"
	redisstorage "github.com/taoyao-code/game-server/internal/storage/redis"
)

// NewRedisShards 创建玩家分片 Redis 客户端；未启用时返回 nil
func NewRedisShards(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Shards, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	shards, err := redisstorage.NewShards(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("redis shards initialized",
		zap.Strings("addrs", cfg.Addrs()),
		zap.Int("pool_size", cfg.PoolSize))
	return shards, nil
}
