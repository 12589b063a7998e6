// Package lock 提供按字符串键的互斥锁服务。
//
// 调度层只依赖 Locker 接口；进程内实现用于单实例部署与测试，
// Redis 实现用于多实例部署时跨进程互斥。
package lock

import (
	"context"
	"errors"
	"strconv"
)

// PlayerNamespace 玩家锁命名空间
const PlayerNamespace = "player"

var (
	// ErrNotHeld 释放时发现锁已不属于当前持有者（重复释放或已过期被他人获取）
	ErrNotHeld = errors.New("lock: not held")
	// ErrWaitTimeout 在配置的等待时间内未获得锁
	ErrWaitTimeout = errors.New("lock: wait timeout")
	// ErrBackend 锁后端本身出错（网络、Redis 错误），与锁竞争区分
	ErrBackend = errors.New("lock: backend error")
)

// Handle 一次加锁的所有权，只能释放一次
type Handle interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker 互斥锁服务：Acquire 阻塞直到获得锁、ctx 结束或等待超时
type Locker interface {
	Acquire(ctx context.Context, key string) (Handle, error)
}

// Key 构造 "<namespace>:<id>" 形式的锁键
func Key(namespace string, id int64) string {
	return namespace + ":" + strconv.FormatInt(id, 10)
}

// PlayerKey 玩家锁键，例如 "player:42"
func PlayerKey(playerID int64) string {
	return Key(PlayerNamespace, playerID)
}
