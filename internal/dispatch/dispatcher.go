// Package dispatch 按消息类型把请求路由到动作，并对同一玩家的写操作串行化。
//
// 非只读动作且 PlayerID > 0 时，执行前获取 "<namespace>:<playerID>" 锁，
// 无论动作正常返回、返回业务错误还是 panic，锁都会在 Dispatch 返回前释放且只释放一次。
// 只读动作与无玩家上下文（PlayerID == 0）的请求不加锁。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/lock"
	"github.com/taoyao-code/game-server/internal/metrics"
)

// 未注册消息类型统一使用的指标标签，避免标签基数失控
const unknownMessageType = "unknown"

// Request 一次调度请求
type Request struct {
	MessageType string
	// PlayerID 0 表示无玩家上下文（未登录或系统请求）
	PlayerID int64
	Payload  action.Message
}

// Resolver 消息类型解析（由 action.Registry 实现）
type Resolver interface {
	Resolve(messageType string) (action.Route, error)
}

// Dispatcher 请求调度器，可被任意多个 goroutine 并发调用
type Dispatcher struct {
	routes         Resolver
	locker         lock.Locker
	namespace      string
	releaseTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.AppMetrics
}

// Option 调度器可选项
type Option func(*Dispatcher)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.AppMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithNamespace 设置玩家锁命名空间（默认 "player"）
func WithNamespace(ns string) Option {
	return func(d *Dispatcher) {
		if ns != "" {
			d.namespace = ns
		}
	}
}

// WithReleaseTimeout 设置释放锁的超时时间（默认 5s）
func WithReleaseTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.releaseTimeout = t
		}
	}
}

// New 创建调度器
func New(routes Resolver, locker lock.Locker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		routes:         routes,
		locker:         locker,
		namespace:      lock.PlayerNamespace,
		releaseTimeout: 5 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch 解析并执行请求对应的动作，动作的结果与业务错误原样返回
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp action.Message, err error) {
	start := time.Now()

	route, err := d.routes.Resolve(req.MessageType)
	if err != nil {
		if errors.Is(err, action.ErrNotFound) {
			err = fmt.Errorf("%w: %q", ErrNoActionForMessageType, req.MessageType)
		}
		d.logger.Debug("no action for message type",
			zap.String("message_type", req.MessageType),
			zap.Int64("player_id", req.PlayerID),
			zap.Error(err))
		d.metrics.ObserveDispatch(unknownMessageType, StatusOf(err), time.Since(start))
		return nil, err
	}
	defer func() {
		d.metrics.ObserveDispatch(req.MessageType, StatusOf(err), time.Since(start))
	}()

	d.logger.Debug("dispatch action",
		zap.String("message_type", req.MessageType),
		zap.String("owner", route.Owner),
		zap.Int64("player_id", req.PlayerID),
		zap.Bool("readonly", route.ReadOnly))

	if req.PlayerID > 0 && !route.ReadOnly {
		h, err := d.acquire(ctx, req.PlayerID)
		if err != nil {
			return nil, err
		}
		defer d.release(ctx, h)
	}

	return d.invoke(withRequest(ctx, req), route, req.Payload)
}

func (d *Dispatcher) acquire(ctx context.Context, playerID int64) (lock.Handle, error) {
	key := lock.Key(d.namespace, playerID)
	waitStart := time.Now()
	h, err := d.locker.Acquire(ctx, key)
	if d.metrics != nil {
		d.metrics.LockWait.Observe(time.Since(waitStart).Seconds())
	}
	if err != nil {
		if d.metrics != nil {
			d.metrics.LockFailures.Inc()
		}
		d.logger.Warn("player lock acquisition failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrLockAcquisitionFailed, key, err)
	}
	return h, nil
}

// release 使用与调用方取消无关的 ctx，调用方放弃等待也不会遗留锁
func (d *Dispatcher) release(ctx context.Context, h lock.Handle) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.releaseTimeout)
	defer cancel()
	if err := h.Release(rctx); err != nil {
		if d.metrics != nil {
			d.metrics.LockReleaseErrors.Inc()
		}
		d.logger.Error("player lock release failed", zap.String("key", h.Key()), zap.Error(err))
	}
}

func (d *Dispatcher) invoke(ctx context.Context, route action.Route, payload action.Message) (resp action.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			fault := &FaultError{
				MessageType: route.MessageType,
				Owner:       route.Owner,
				Value:       r,
				Stack:       debug.Stack(),
			}
			d.logger.Error("action panic",
				zap.String("message_type", route.MessageType),
				zap.String("owner", route.Owner),
				zap.Any("panic", r),
				zap.ByteString("stack", fault.Stack))
			resp, err = nil, fault
		}
	}()
	return route.Handle(ctx, payload)
}
