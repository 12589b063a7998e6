package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen 锁后端连续失败，熔断期内直接拒绝
var ErrCircuitOpen = errors.New("lock: circuit breaker is open")

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常
	BreakerOpen                         // 熔断，拒绝全部请求
	BreakerHalfOpen                     // 放行一个试探请求
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerLocker 为锁后端加熔断：连续 threshold 次后端错误后熔断 cooldown，
// 期间获取锁立即失败，避免所有请求都卡在不可用的后端上。
// 锁竞争（等待超时）与调用方取消不计为后端错误。
// 半开状态下的试探请求最多等待 cooldown：试探键被他人持有时，
// 后端能应答即视为恢复，试探请求本身以超时失败。
type BreakerLocker struct {
	inner     Locker
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	onStateChange func(from, to BreakerState)
}

// NewBreakerLocker 包装锁服务
func NewBreakerLocker(inner Locker, threshold int, cooldown time.Duration) *BreakerLocker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &BreakerLocker{inner: inner, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// SetStateChangeCallback 设置状态变化回调（在持锁外同步调用）
func (b *BreakerLocker) SetStateChangeCallback(fn func(from, to BreakerState)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// State 当前状态
func (b *BreakerLocker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerLocker) Acquire(ctx context.Context, key string) (Handle, error) {
	trial, err := b.before()
	if err != nil {
		return nil, err
	}
	if !trial {
		h, err := b.inner.Acquire(ctx, key)
		b.after(false, isBackendError(err))
		return h, err
	}

	pctx, cancel := context.WithTimeout(ctx, b.cooldown)
	defer cancel()
	h, err := b.inner.Acquire(pctx, key)
	b.after(true, isBackendError(err))
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = ErrWaitTimeout
	}
	return h, err
}

func isBackendError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackend) {
		return true
	}
	return !errors.Is(err, ErrWaitTimeout) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (b *BreakerLocker) before() (trial bool, err error) {
	b.mu.Lock()
	var from, to BreakerState
	changed := false
	defer func() {
		cb := b.onStateChange
		b.mu.Unlock()
		if changed && cb != nil {
			cb(from, to)
		}
	}()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		from, to, changed = b.state, BreakerHalfOpen, true
		b.state = BreakerHalfOpen
		b.probing = true
		return true, nil
	case BreakerHalfOpen:
		if b.probing {
			return false, ErrCircuitOpen
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *BreakerLocker) after(trial, failed bool) {
	b.mu.Lock()
	from := b.state
	if trial {
		b.probing = false
	}
	if failed {
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	} else {
		b.failures = 0
		if b.state == BreakerHalfOpen && trial {
			b.state = BreakerClosed
		}
	}
	to := b.state
	cb := b.onStateChange
	b.mu.Unlock()

	if from != to && cb != nil {
		cb(from, to)
	}
}
