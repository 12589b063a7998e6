package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis 中锁键的前缀，完整键形如 lock:player:42
const redisKeyPrefix = "lock:"

// 仅当值仍为自己的令牌时才删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 仅当值仍为自己的令牌时才续期
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ClientPicker 为锁键选择 Redis 客户端（分片）
type ClientPicker interface {
	Pick(key string) *redis.Client
}

type singleClient struct{ c *redis.Client }

func (s singleClient) Pick(string) *redis.Client { return s.c }

// SingleClient 所有键使用同一个客户端
func SingleClient(c *redis.Client) ClientPicker { return singleClient{c: c} }

// RedisOptions Redis 锁参数
type RedisOptions struct {
	// TTL 锁键过期时间；持有期间由看门狗按 TTL/3 续期
	TTL time.Duration
	// RetryInterval 锁被占用时的轮询间隔
	RetryInterval time.Duration
	// WaitTimeout 最长等待时间，0 表示无限等待
	WaitTimeout time.Duration
}

// RedisLocker 基于 SET NX PX 的分布式互斥锁
type RedisLocker struct {
	picker ClientPicker
	opts   RedisOptions
	logger *zap.Logger
}

// NewRedisLocker 创建 Redis 锁服务
func NewRedisLocker(picker ClientPicker, opts RedisOptions, logger *zap.Logger) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 20 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{picker: picker, opts: opts, logger: logger}
}

// Acquire 轮询 SET NX 直到成功
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Handle, error) {
	client := l.picker.Pick(key)
	rkey := redisKeyPrefix + key
	token := uuid.New().String()

	var deadline <-chan time.Time
	if l.opts.WaitTimeout > 0 {
		timer := time.NewTimer(l.opts.WaitTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := client.SetNX(ctx, rkey, token, l.opts.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: redis setnx %s: %w", ErrBackend, rkey, err)
		}
		if ok {
			return l.newHandle(client, key, rkey, token), nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return nil, ErrWaitTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *RedisLocker) newHandle(client *redis.Client, key, rkey, token string) *redisHandle {
	h := &redisHandle{
		l:      l,
		client: client,
		key:    key,
		rkey:   rkey,
		token:  token,
		stopC:  make(chan struct{}),
		doneC:  make(chan struct{}),
	}
	go h.watchdog()
	return h
}

type redisHandle struct {
	l      *RedisLocker
	client *redis.Client
	key    string
	rkey   string
	token  string

	once  sync.Once
	stopC chan struct{}
	doneC chan struct{}
}

func (h *redisHandle) Key() string { return h.key }

// watchdog 持有期间定期续期，避免长耗时动作执行中锁过期
func (h *redisHandle) watchdog() {
	defer close(h.doneC)
	ticker := time.NewTicker(h.l.opts.TTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopC:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.l.opts.TTL/3)
			n, err := extendScript.Run(ctx, h.client, []string{h.rkey}, h.token, h.l.opts.TTL.Milliseconds()).Int64()
			cancel()
			if err != nil {
				h.l.logger.Warn("lock extend failed", zap.String("key", h.key), zap.Error(err))
				continue
			}
			if n == 0 {
				h.l.logger.Warn("lock lost before release", zap.String("key", h.key))
				return
			}
		}
	}
}

// Release 停止续期并删除锁键；锁已不属于自己时返回 ErrNotHeld
func (h *redisHandle) Release(ctx context.Context) error {
	released := false
	h.once.Do(func() {
		released = true
		close(h.stopC)
	})
	if !released {
		return ErrNotHeld
	}
	<-h.doneC

	n, err := releaseScript.Run(ctx, h.client, []string{h.rkey}, h.token).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotHeld
		}
		return fmt.Errorf("%w: redis release %s: %w", ErrBackend, h.rkey, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
