package tcpserver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ConnectionLimiter 并发连接数限制（信号量）
type ConnectionLimiter struct {
	sem      chan struct{}
	timeout  time.Duration
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter 创建连接限流器；timeout 为等待许可的最长时间
func NewConnectionLimiter(maxConn int, timeout time.Duration) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = 10000
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ConnectionLimiter{sem: make(chan struct{}, maxConn), timeout: timeout}
}

// Acquire 获取连接许可
func (l *ConnectionLimiter) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		l.rejected.Add(1)
		return fmt.Errorf("connection limit exceeded: max=%d", cap(l.sem))
	}
}

// Release 释放连接许可
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
	default:
	}
}

// Stats 获取统计信息
func (l *ConnectionLimiter) Stats() LimiterStats {
	active := int(l.active.Load())
	return LimiterStats{
		MaxConnections:    cap(l.sem),
		ActiveConnections: active,
		RejectedTotal:     l.rejected.Load(),
		Utilization:       float64(active) / float64(cap(l.sem)),
	}
}

// LimiterStats 连接限流统计
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"`
}

// RateLimiter 接入速率限制（令牌桶）
type RateLimiter struct {
	limiter  *rate.Limiter
	allowed  atomic.Int64
	rejected atomic.Int64
}

// NewRateLimiter 创建速率限流器；burst 默认为速率的 2 倍
func NewRateLimiter(ratePerSec int, burst int) *RateLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 100
	}
	if burst <= 0 {
		burst = ratePerSec * 2
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Allow 非阻塞检查是否放行
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

// Stats 获取统计信息
func (l *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		RatePerSecond: float64(l.limiter.Limit()),
		Burst:         l.limiter.Burst(),
		AllowedTotal:  l.allowed.Load(),
		RejectedTotal: l.rejected.Load(),
	}
}

// RateLimiterStats 速率限流统计
type RateLimiterStats struct {
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	AllowedTotal  int64   `json:"allowed_total"`
	RejectedTotal int64   `json:"rejected_total"`
}
