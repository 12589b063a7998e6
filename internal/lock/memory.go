package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryLocker 进程内互斥锁，每个键一个容量为 1 的令牌通道
// 无人持有也无人等待的键会被回收。
type MemoryLocker struct {
	waitTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	token chan struct{}
	refs  int
}

// NewMemoryLocker 创建进程内锁；waitTimeout 为 0 表示无限等待
func NewMemoryLocker(waitTimeout time.Duration) *MemoryLocker {
	return &MemoryLocker{
		waitTimeout: waitTimeout,
		entries:     make(map[string]*memEntry),
	}
}

func (l *MemoryLocker) ref(key string) *memEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key]
	if e == nil {
		e = &memEntry{token: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *MemoryLocker) unref(key string, e *memEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Acquire 获取键对应的锁
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Handle, error) {
	e := l.ref(key)

	// 快速路径
	select {
	case e.token <- struct{}{}:
		return &memHandle{l: l, key: key, e: e}, nil
	default:
	}

	var timeoutC <-chan time.Time
	if l.waitTimeout > 0 {
		timer := time.NewTimer(l.waitTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case e.token <- struct{}{}:
		return &memHandle{l: l, key: key, e: e}, nil
	case <-timeoutC:
		l.unref(key, e)
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}
}

// Held 当前是否有人持有该键（用于诊断与测试）
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	e := l.entries[key]
	l.mu.Unlock()
	return e != nil && len(e.token) == 1
}

type memHandle struct {
	l        *MemoryLocker
	key      string
	e        *memEntry
	released atomic.Bool
}

func (h *memHandle) Key() string { return h.key }

func (h *memHandle) Release(context.Context) error {
	if !h.released.CompareAndSwap(false, true) {
		return ErrNotHeld
	}
	<-h.e.token
	h.l.unref(h.key, h.e)
	return nil
}
