package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	cfgpkg "github.com/taoyao-code/game-server/internal/config"
)

// Client Redis客户端封装
type Client struct {
	*redis.Client
	addr string
}

// NewClient 按配置创建连接到 addr 的客户端并做一次 Ping
func NewClient(cfg cfgpkg.RedisConfig, addr string) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", addr, err)
	}

	return &Client{Client: rdb, addr: addr}, nil
}

// Addr 连接地址
func (c *Client) Addr() string { return c.addr }

// Close 关闭Redis连接
func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Stats 获取连接池统计
func (c *Client) Stats() *redis.PoolStats {
	return c.PoolStats()
}
