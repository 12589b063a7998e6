package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/lock"
	"github.com/taoyao-code/game-server/internal/metrics"
)

// recordingLocker 记录加锁/解锁调用的锁服务
type recordingLocker struct {
	inner lock.Locker
	err   error

	mu     sync.Mutex
	events []string
}

func newRecordingLocker() *recordingLocker {
	return &recordingLocker{inner: lock.NewMemoryLocker(0)}
}

func (l *recordingLocker) record(ev string) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *recordingLocker) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingLocker) Acquire(ctx context.Context, key string) (lock.Handle, error) {
	l.record("acquire " + key)
	if l.err != nil {
		return nil, l.err
	}
	h, err := l.inner.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	return &recordingHandle{Handle: h, l: l}, nil
}

type recordingHandle struct {
	lock.Handle
	l *recordingLocker
}

func (h *recordingHandle) Release(ctx context.Context) error {
	h.l.record("release " + h.Key())
	return h.Handle.Release(ctx)
}

// interval 动作执行区间
type interval struct{ enter, exit time.Time }

type intervalRecorder struct {
	mu  sync.Mutex
	ivs []interval
}

func (r *intervalRecorder) handler(d time.Duration) action.HandlerFunc {
	return func(ctx context.Context, msg action.Message) (action.Message, error) {
		enter := time.Now()
		time.Sleep(d)
		exit := time.Now()
		r.mu.Lock()
		r.ivs = append(r.ivs, interval{enter, exit})
		r.mu.Unlock()
		return msg, nil
	}
}

func (r *intervalRecorder) overlaps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.ivs {
		for j := i + 1; j < len(r.ivs); j++ {
			a, b := r.ivs[i], r.ivs[j]
			if a.enter.Before(b.exit) && b.enter.Before(a.exit) {
				n++
			}
		}
	}
	return n
}

func newRegistry(t *testing.T, b *action.Builder) *action.Registry {
	t.Helper()
	r := action.NewRegistry(nil)
	require.NoError(t, r.Init(b.Descriptors()))
	return r
}

func ok(reply string) action.HandlerFunc {
	return func(ctx context.Context, msg action.Message) (action.Message, error) { return reply, nil }
}

func TestDispatch_MoveAndPing(t *testing.T) {
	reg := newRegistry(t, action.NewBuilder().
		Handle("Move", ok("moved"), "MOVE").
		HandleReadOnly("Ping", ok("pong"), "PING"))
	locker := newRecordingLocker()
	d := New(reg, locker)
	ctx := context.Background()

	resp, err := d.Dispatch(ctx, Request{MessageType: "PING", PlayerID: 7})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)
	assert.Empty(t, locker.Events())

	resp, err = d.Dispatch(ctx, Request{MessageType: "MOVE", PlayerID: 7})
	require.NoError(t, err)
	assert.Equal(t, "moved", resp)
	assert.Equal(t, []string{"acquire player:7", "release player:7"}, locker.Events())
}

func TestDispatch_UnknownMessageType(t *testing.T) {
	called := false
	reg := newRegistry(t, action.NewBuilder().Handle("Move", func(ctx context.Context, msg action.Message) (action.Message, error) {
		called = true
		return nil, nil
	}, "MOVE"))
	locker := newRecordingLocker()
	d := New(reg, locker)

	resp, err := d.Dispatch(context.Background(), Request{MessageType: "FLY", PlayerID: 7})
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrNoActionForMessageType)
	assert.Equal(t, StatusNoAction, StatusOf(err))
	assert.False(t, called)
	assert.Empty(t, locker.Events())
}

func TestDispatch_RegistryNotReady(t *testing.T) {
	d := New(action.NewRegistry(nil), newRecordingLocker())
	_, err := d.Dispatch(context.Background(), Request{MessageType: "MOVE", PlayerID: 1})
	assert.ErrorIs(t, err, action.ErrNotReady)
	assert.Equal(t, StatusNotReady, StatusOf(err))
}

func TestDispatch_AnonymousNeverLocks(t *testing.T) {
	reg := newRegistry(t, action.NewBuilder().
		Handle("Move", ok("moved"), "MOVE").
		HandleReadOnly("Ping", ok("pong"), "PING"))
	locker := newRecordingLocker()
	d := New(reg, locker)

	for _, mt := range []string{"MOVE", "PING", "NOPE"} {
		_, _ = d.Dispatch(context.Background(), Request{MessageType: mt, PlayerID: 0})
	}
	assert.Empty(t, locker.Events())
}

func TestDispatch_MutatingSamePlayerSerialized(t *testing.T) {
	rec := &intervalRecorder{}
	reg := newRegistry(t, action.NewBuilder().Handle("Move", rec.handler(5*time.Millisecond), "MOVE"))
	d := New(reg, lock.NewMemoryLocker(0))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Dispatch(context.Background(), Request{MessageType: "MOVE", PlayerID: 42})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, rec.ivs, 10)
	assert.Zero(t, rec.overlaps())
}

func TestDispatch_DifferentPlayersRunConcurrently(t *testing.T) {
	entered := make(chan struct{}, 2)
	proceed := make(chan struct{})
	h := func(ctx context.Context, msg action.Message) (action.Message, error) {
		entered <- struct{}{}
		<-proceed
		return nil, nil
	}
	reg := newRegistry(t, action.NewBuilder().Handle("Move", h, "MOVE"))
	d := New(reg, lock.NewMemoryLocker(0))

	var wg sync.WaitGroup
	for _, pid := range []int64{1, 2} {
		wg.Add(1)
		go func(pid int64) {
			defer wg.Done()
			_, _ = d.Dispatch(context.Background(), Request{MessageType: "MOVE", PlayerID: pid})
		}(pid)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatal("different players should not block each other")
		}
	}
	close(proceed)
	wg.Wait()
}

func TestDispatch_ReadOnlyMayOverlap(t *testing.T) {
	entered := make(chan struct{}, 2)
	proceed := make(chan struct{})
	h := func(ctx context.Context, msg action.Message) (action.Message, error) {
		entered <- struct{}{}
		<-proceed
		return "view", nil
	}
	reg := newRegistry(t, action.NewBuilder().HandleReadOnly("View", h, "VIEW"))
	locker := newRecordingLocker()
	d := New(reg, locker)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Dispatch(context.Background(), Request{MessageType: "VIEW", PlayerID: 42})
		}()
	}
	// 两个只读请求都进入动作后才放行，证明二者同时执行
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(time.Second):
			t.Fatal("read-only requests were serialized")
		}
	}
	close(proceed)
	wg.Wait()
	assert.Empty(t, locker.Events())
}

func TestDispatch_ReadOnlyNotBlockedByHeldLock(t *testing.T) {
	reg := newRegistry(t, action.NewBuilder().HandleReadOnly("View", ok("view"), "VIEW"))
	locker := lock.NewMemoryLocker(0)
	h, err := locker.Acquire(context.Background(), "player:42")
	require.NoError(t, err)
	defer h.Release(context.Background())

	d := New(reg, locker)
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := d.Dispatch(context.Background(), Request{MessageType: "VIEW", PlayerID: 42})
		assert.NoError(t, err)
		assert.Equal(t, "view", resp)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read-only request blocked behind player lock")
	}
}

func TestDispatch_PanicReleasesLock(t *testing.T) {
	reg := newRegistry(t, action.NewBuilder().Handle("Boom", func(ctx context.Context, msg action.Message) (action.Message, error) {
		panic("boom")
	}, "BOOM"))
	locker := lock.NewMemoryLocker(50 * time.Millisecond)
	d := New(reg, locker)

	resp, err := d.Dispatch(context.Background(), Request{MessageType: "BOOM", PlayerID: 9})
	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrHandlerFault)
	assert.Equal(t, StatusHandlerFault, StatusOf(err))

	var fault *FaultError
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "BOOM", fault.MessageType)
	assert.Equal(t, "Boom", fault.Owner)
	assert.Equal(t, "boom", fault.Value)
	assert.NotEmpty(t, fault.Stack)

	// 锁已释放：立即再次获取应成功
	h, err := locker.Acquire(context.Background(), "player:9")
	require.NoError(t, err)
	require.NoError(t, h.Release(context.Background()))
}

func TestDispatch_PanicWithErrorUnwraps(t *testing.T) {
	cause := errors.New("nil map")
	reg := newRegistry(t, action.NewBuilder().Handle("Boom", func(ctx context.Context, msg action.Message) (action.Message, error) {
		panic(cause)
	}, "BOOM"))
	d := New(reg, lock.NewMemoryLocker(0))

	_, err := d.Dispatch(context.Background(), Request{MessageType: "BOOM", PlayerID: 1})
	assert.ErrorIs(t, err, ErrHandlerFault)
	assert.ErrorIs(t, err, cause)
}

func TestDispatch_BusinessErrorPropagatedAndLockReleased(t *testing.T) {
	errNoGold := errors.New("not enough gold")
	reg := newRegistry(t, action.NewBuilder().Handle("Buy", func(ctx context.Context, msg action.Message) (action.Message, error) {
		return "partial", errNoGold
	}, "BUY"))
	locker := newRecordingLocker()
	d := New(reg, locker)

	resp, err := d.Dispatch(context.Background(), Request{MessageType: "BUY", PlayerID: 3})
	assert.Same(t, errNoGold, err)
	assert.Equal(t, "partial", resp)
	assert.Equal(t, StatusBusinessError, StatusOf(err))
	assert.Equal(t, []string{"acquire player:3", "release player:3"}, locker.Events())
}

func TestDispatch_LockFailureSkipsHandler(t *testing.T) {
	called := false
	reg := newRegistry(t, action.NewBuilder().Handle("Move", func(ctx context.Context, msg action.Message) (action.Message, error) {
		called = true
		return nil, nil
	}, "MOVE"))
	errDown := errors.New("redis down")
	locker := newRecordingLocker()
	locker.err = errDown
	d := New(reg, locker)

	_, err := d.Dispatch(context.Background(), Request{MessageType: "MOVE", PlayerID: 5})
	assert.ErrorIs(t, err, ErrLockAcquisitionFailed)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, StatusLockFailed, StatusOf(err))
	assert.False(t, called)
	assert.Equal(t, []string{"acquire player:5"}, locker.Events())
}

func TestDispatch_CancelledCallerStillReleases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := newRegistry(t, action.NewBuilder().Handle("Move", func(hctx context.Context, msg action.Message) (action.Message, error) {
		cancel()
		return nil, hctx.Err()
	}, "MOVE"))
	locker := lock.NewMemoryLocker(50 * time.Millisecond)
	d := New(reg, locker)

	_, err := d.Dispatch(ctx, Request{MessageType: "MOVE", PlayerID: 11})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, locker.Held("player:11"))
}

func TestDispatch_CustomNamespace(t *testing.T) {
	reg := newRegistry(t, action.NewBuilder().Handle("Move", ok("m"), "MOVE"))
	locker := newRecordingLocker()
	d := New(reg, locker, WithNamespace("hero"))

	_, err := d.Dispatch(context.Background(), Request{MessageType: "MOVE", PlayerID: 8})
	require.NoError(t, err)
	assert.Equal(t, []string{"acquire hero:8", "release hero:8"}, locker.Events())
}

func TestDispatch_RequestInContext(t *testing.T) {
	var got Request
	reg := newRegistry(t, action.NewBuilder().Handle("Move", func(ctx context.Context, msg action.Message) (action.Message, error) {
		got, _ = RequestFrom(ctx)
		return nil, nil
	}, "MOVE"))
	d := New(reg, lock.NewMemoryLocker(0))

	_, err := d.Dispatch(context.Background(), Request{MessageType: "MOVE", PlayerID: 8, Payload: "p"})
	require.NoError(t, err)
	assert.Equal(t, Request{MessageType: "MOVE", PlayerID: 8, Payload: "p"}, got)

	_, found := RequestFrom(context.Background())
	assert.False(t, found)
}

func TestDispatch_Metrics(t *testing.T) {
	reg := newRegistry(t, action.NewBuilder().
		Handle("Move", ok("m"), "MOVE").
		Handle("Boom", func(ctx context.Context, msg action.Message) (action.Message, error) { panic("x") }, "BOOM"))
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	d := New(reg, lock.NewMemoryLocker(0), WithMetrics(m))
	ctx := context.Background()

	_, _ = d.Dispatch(ctx, Request{MessageType: "MOVE", PlayerID: 1})
	_, _ = d.Dispatch(ctx, Request{MessageType: "MOVE", PlayerID: 0})
	_, _ = d.Dispatch(ctx, Request{MessageType: "BOOM", PlayerID: 1})
	_, _ = d.Dispatch(ctx, Request{MessageType: "NOPE", PlayerID: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("MOVE", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues("BOOM", StatusHandlerFault)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchTotal.WithLabelValues(unknownMessageType, StatusNoAction)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LockFailures))
}
