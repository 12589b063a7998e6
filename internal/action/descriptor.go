package action

import "context"

// Message 请求/响应载荷，由传输层决定具体类型（网关使用 json.RawMessage）
type Message = any

// HandlerFunc 动作入口：处理一个消息并返回响应消息或业务错误
// 实现不得在返回后继续持有 ctx。
type HandlerFunc func(ctx context.Context, msg Message) (Message, error)

// Descriptor 一个动作处理器的声明：所属者、绑定的消息类型、是否只读、入口函数
type Descriptor struct {
	Owner        string
	MessageTypes []string
	ReadOnly     bool
	Handle       HandlerFunc
}

// Provider 提供一组动作声明（通常是一个动作模块，持有自身依赖）
type Provider interface {
	Descriptors() []Descriptor
}

// Route 消息类型解析结果
type Route struct {
	MessageType string
	Owner       string
	ReadOnly    bool
	Handle      HandlerFunc
}
