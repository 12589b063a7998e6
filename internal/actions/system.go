// Package actions 内置动作：系统探活与玩家回显，保证服务开箱即可端到端运行。
package actions

import (
	"context"
	"time"

	"github.com/taoyao-code/game-server/internal/action"
)

// 消息类型
const (
	TypePing = "system.ping"
	TypeTime = "system.time"
	TypeEcho = "player.echo"
)

// System 系统动作（只读）
type System struct {
	ServerID string
	Now      func() time.Time
}

// PingReply system.ping 响应
type PingReply struct {
	Pong     bool   `json:"pong"`
	ServerID string `json:"server_id"`
}

// TimeReply system.time 响应
type TimeReply struct {
	UnixMilli int64 `json:"unix_milli"`
}

func (s *System) Descriptors() []action.Descriptor {
	return []action.Descriptor{
		{Owner: "System.Ping", MessageTypes: []string{TypePing}, ReadOnly: true, Handle: s.ping},
		{Owner: "System.Time", MessageTypes: []string{TypeTime}, ReadOnly: true, Handle: s.time},
	}
}

func (s *System) ping(context.Context, action.Message) (action.Message, error) {
	return PingReply{Pong: true, ServerID: s.ServerID}, nil
}

func (s *System) time(context.Context, action.Message) (action.Message, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return TimeReply{UnixMilli: now().UnixMilli()}, nil
}
