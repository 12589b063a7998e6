package dispatch

import (
	"errors"
	"fmt"

	"github.com/taoyao-code/game-server/internal/action"
)

var (
	// ErrNoActionForMessageType 消息类型未注册任何动作
	ErrNoActionForMessageType = errors.New("dispatch: no action for message type")
	// ErrLockAcquisitionFailed 玩家锁获取失败，动作未执行
	ErrLockAcquisitionFailed = errors.New("dispatch: player lock acquisition failed")
	// ErrHandlerFault 动作执行中发生 panic
	ErrHandlerFault = errors.New("dispatch: handler fault")
)

// FaultError 动作 panic 的包装
type FaultError struct {
	MessageType string
	Owner       string
	Value       any
	Stack       []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("dispatch: handler fault in %s[%s]: %v", e.Owner, e.MessageType, e.Value)
}

func (e *FaultError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return errors.Join(ErrHandlerFault, err)
	}
	return ErrHandlerFault
}

// 响应状态码，同时用作 dispatch_total 的 result 标签
const (
	StatusOK            = "ok"
	StatusNoAction      = "no_action_for_message_type"
	StatusLockFailed    = "lock_failed"
	StatusHandlerFault  = "handler_fault"
	StatusNotReady      = "not_ready"
	StatusBusinessError = "error"
)

// StatusOf 将调度结果映射为状态码
func StatusOf(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNoActionForMessageType):
		return StatusNoAction
	case errors.Is(err, ErrLockAcquisitionFailed):
		return StatusLockFailed
	case errors.Is(err, ErrHandlerFault):
		return StatusHandlerFault
	case errors.Is(err, action.ErrNotReady):
		return StatusNotReady
	default:
		return StatusBusinessError
	}
}
