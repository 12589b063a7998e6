package action

import (
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// 注册表生命周期
const (
	StateUninitialized int32 = iota
	StateInitializing
	StateReady
	StateFailed
)

// Registry 消息类型 -> 动作的路由表
//
// 三张表只在 Init 中写入一次，进入 ready 之后不再修改，
// 因此 Resolve 无需加锁即可并发读取。
type Registry struct {
	logger *zap.Logger

	started atomic.Bool
	state   atomic.Int32
	done    chan struct{}

	handlers map[string]HandlerFunc
	owners   map[string]string
	readOnly map[string]struct{}
}

// NewRegistry 创建空注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Init 根据声明列表建立路由表，整个生命周期只执行一次。
// 后续（包括并发的）调用等待首次初始化结束后直接返回 nil，不会重复注册；
// 首次初始化失败时错误只返回给首个调用者，注册表停留在 failed 状态。
func (r *Registry) Init(descriptors []Descriptor) error {
	if !r.started.CompareAndSwap(false, true) {
		<-r.done
		return nil
	}
	defer close(r.done)
	r.state.Store(StateInitializing)

	handlers := make(map[string]HandlerFunc)
	owners := make(map[string]string)
	readOnly := make(map[string]struct{})

	for _, d := range descriptors {
		if len(d.MessageTypes) == 0 {
			return r.fail(&ConfigError{Owner: d.Owner, Reason: ReasonEmptyMessageTypes})
		}
		if d.Handle == nil {
			return r.fail(&ConfigError{Owner: d.Owner, Reason: ReasonNilHandler})
		}
		for _, mt := range d.MessageTypes {
			if mt == "" {
				return r.fail(&ConfigError{Owner: d.Owner, Reason: ReasonEmptyMessageType})
			}
			if _, dup := handlers[mt]; dup {
				return r.fail(&ConfigError{Owner: d.Owner, MessageType: mt, PrevOwner: owners[mt], Reason: ReasonDuplicate})
			}
			handlers[mt] = d.Handle
			owners[mt] = d.Owner
			if d.ReadOnly {
				readOnly[mt] = struct{}{}
			}
			r.logger.Info("action bound",
				zap.String("message_type", mt),
				zap.String("owner", d.Owner),
				zap.Bool("readonly", d.ReadOnly))
		}
	}

	r.handlers, r.owners, r.readOnly = handlers, owners, readOnly
	r.state.Store(StateReady)
	r.logger.Info("action registry ready", zap.Int("message_types", len(handlers)))
	return nil
}

func (r *Registry) fail(err *ConfigError) error {
	r.state.Store(StateFailed)
	r.logger.Error("action registry init failed", zap.Error(err))
	return err
}

// State 返回当前生命周期状态
func (r *Registry) State() int32 { return r.state.Load() }

// Ready 是否已完成初始化
func (r *Registry) Ready() bool { return r.state.Load() == StateReady }

// Resolve 查找消息类型对应的动作
func (r *Registry) Resolve(messageType string) (Route, error) {
	if !r.Ready() {
		return Route{}, ErrNotReady
	}
	h, ok := r.handlers[messageType]
	if !ok {
		return Route{}, ErrNotFound
	}
	_, ro := r.readOnly[messageType]
	return Route{
		MessageType: messageType,
		Owner:       r.owners[messageType],
		ReadOnly:    ro,
		Handle:      h,
	}, nil
}

// IsReadOnly 消息类型是否免除玩家锁
func (r *Registry) IsReadOnly(messageType string) bool {
	if !r.Ready() {
		return false
	}
	_, ok := r.readOnly[messageType]
	return ok
}

// Len 已注册的消息类型数量
func (r *Registry) Len() int {
	if !r.Ready() {
		return 0
	}
	return len(r.handlers)
}

// Bindings 按消息类型排序返回全部路由（不含入口函数）
func (r *Registry) Bindings() []Route {
	if !r.Ready() {
		return nil
	}
	out := make([]Route, 0, len(r.handlers))
	for mt, owner := range r.owners {
		_, ro := r.readOnly[mt]
		out = append(out, Route{MessageType: mt, Owner: owner, ReadOnly: ro})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageType < out[j].MessageType })
	return out
}
