package app

import (
	"errors"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/game-server/internal/config"
	"github.com/taoyao-code/game-server/internal/lock"
	"github.com/taoyao-code/game-server/internal/metrics"
	redisstorage "github.com/taoyao-code/game-server/internal/storage/redis"
)

// NewPlayerLocker 按配置创建玩家锁服务。
// Redis 后端外包一层熔断器（breakerThreshold > 0 时），返回的 breaker 可能为 nil。
func NewPlayerLocker(
	cfg cfgpkg.LockConfig,
	shards *redisstorage.Shards,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) (lock.Locker, *lock.BreakerLocker, error) {
	switch cfg.Backend {
	case cfgpkg.LockBackendMemory:
		logger.Info("player lock backend: memory", zap.Duration("wait_timeout", cfg.WaitTimeout))
		return lock.NewMemoryLocker(cfg.WaitTimeout), nil, nil

	case cfgpkg.LockBackendRedis:
		if shards == nil || shards.Len() == 0 {
			return nil, nil, errors.New("player lock: redis backend requires redis shards")
		}
		rl := lock.NewRedisLocker(shards, lock.RedisOptions{
			TTL:           cfg.TTL,
			RetryInterval: cfg.RetryInterval,
			WaitTimeout:   cfg.WaitTimeout,
		}, logger)
		logger.Info("player lock backend: redis",
			zap.Int("shards", shards.Len()),
			zap.Duration("ttl", cfg.TTL),
			zap.Duration("wait_timeout", cfg.WaitTimeout))

		if cfg.BreakerThreshold <= 0 {
			return rl, nil, nil
		}
		br := lock.NewBreakerLocker(rl, cfg.BreakerThreshold, cfg.BreakerCooldown)
		br.SetStateChangeCallback(func(from, to lock.BreakerState) {
			logger.Warn("player lock breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if appm != nil {
				appm.LockBreakerState.Set(float64(to))
			}
		})
		return br, br, nil

	default:
		return nil, nil, errors.New("player lock: unknown backend " + cfg.Backend)
	}
}
