package action

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 动作注册配置错误（启动期致命错误）
	ErrConfiguration = errors.New("action: configuration error")
	// ErrNotFound 消息类型没有对应的动作
	ErrNotFound = errors.New("action: no handler for message type")
	// ErrNotReady 注册表尚未完成初始化
	ErrNotReady = errors.New("action: registry not ready")
)

// 配置错误原因
const (
	ReasonEmptyMessageTypes = "empty message type list"
	ReasonDuplicate         = "duplicate message type"
	ReasonEmptyMessageType  = "empty message type"
	ReasonNilHandler        = "nil handler"
)

// ConfigError 描述导致初始化失败的那一条声明
type ConfigError struct {
	Owner       string
	MessageType string
	// PrevOwner 重复注册时，先注册该消息类型的所属者
	PrevOwner string
	Reason    string
}

func (e *ConfigError) Error() string {
	switch {
	case e.PrevOwner != "":
		return fmt.Sprintf("action[%s] message type %q: %s (already bound to %s)", e.Owner, e.MessageType, e.Reason, e.PrevOwner)
	case e.MessageType != "":
		return fmt.Sprintf("action[%s] message type %q: %s", e.Owner, e.MessageType, e.Reason)
	default:
		return fmt.Sprintf("action[%s]: %s", e.Owner, e.Reason)
	}
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
