package app

import (
	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/health"
	"github.com/taoyao-code/game-server/internal/lock"
	redisstorage "github.com/taoyao-code/game-server/internal/storage/redis"
	"github.com/taoyao-code/game-server/internal/tcpserver"
)

// NewHealthAggregator 汇总各组件健康检查；可选组件为 nil 时跳过
func NewHealthAggregator(
	reg *action.Registry,
	limiter *tcpserver.ConnectionLimiter,
	breaker *lock.BreakerLocker,
	shards *redisstorage.Shards,
) *health.Aggregator {
	agg := health.NewAggregator(
		health.NewRegistryChecker(reg),
		health.NewGatewayChecker(limiter),
	)
	if breaker != nil {
		agg.AddChecker(health.NewLockChecker(breaker))
	}
	if shards != nil {
		agg.AddChecker(health.NewRedisChecker(shards))
	}
	return agg
}
