package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/game-server/internal/storage/redis"
)

// RedisChecker 玩家锁 Redis 分片检查器：任一分片不可达即 Unhealthy
type RedisChecker struct {
	shards *redisstorage.Shards
}

// NewRedisChecker 创建 Redis 分片检查器
func NewRedisChecker(shards *redisstorage.Shards) *RedisChecker {
	return &RedisChecker{shards: shards}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	status := StatusHealthy
	message := "ok"
	details := make(map[string]any, c.shards.Len())

	for i, cli := range c.shards.Clients() {
		shard := map[string]any{"addr": cli.Addr()}
		if err := cli.HealthCheck(ctx); err != nil {
			status = StatusUnhealthy
			message = fmt.Sprintf("shard %d ping failed: %v", i, err)
			shard["error"] = err.Error()
			details[fmt.Sprintf("shard_%d", i)] = shard
			continue
		}

		stats := cli.Stats()
		utilization := 0.0
		if stats.TotalConns > 0 {
			utilization = float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
		}
		if utilization > 0.9 && status == StatusHealthy {
			status = StatusDegraded
			message = fmt.Sprintf("shard %d connection pool near limit", i)
		}
		shard["total_conns"] = stats.TotalConns
		shard["idle_conns"] = stats.IdleConns
		shard["timeouts"] = stats.Timeouts
		shard["utilization"] = fmt.Sprintf("%.1f%%", utilization*100)
		details[fmt.Sprintf("shard_%d", i)] = shard
	}

	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
