package actions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/dispatch"
)

// ErrNoPlayer 需要玩家上下文的动作收到匿名请求
var ErrNoPlayer = errors.New("actions: player context required")

// Player 玩家动作（写操作，受玩家锁保护）
// 回显序号用原子计数：Redis 锁跨进程交接不提供内存可见性保证。
type Player struct {
	seqs sync.Map // playerID -> *atomic.Int64
}

// EchoReply player.echo 响应
type EchoReply struct {
	PlayerID int64          `json:"player_id"`
	Seq      int64          `json:"seq"`
	Echo     action.Message `json:"echo,omitempty"`
}

func (p *Player) Descriptors() []action.Descriptor {
	return []action.Descriptor{
		{Owner: "Player.Echo", MessageTypes: []string{TypeEcho}, Handle: p.echo},
	}
}

func (p *Player) echo(ctx context.Context, msg action.Message) (action.Message, error) {
	req, ok := dispatch.RequestFrom(ctx)
	if !ok || req.PlayerID <= 0 {
		return nil, ErrNoPlayer
	}
	v, _ := p.seqs.LoadOrStore(req.PlayerID, new(atomic.Int64))
	seq := v.(*atomic.Int64).Add(1)
	return EchoReply{PlayerID: req.PlayerID, Seq: seq, Echo: msg}, nil
}

// Forget 丢弃玩家的回显序号，下次回显从 1 重新计数
func (p *Player) Forget(playerID int64) {
	p.seqs.Delete(playerID)
}

// Builtin 返回全部内置动作模块
func Builtin(serverID string) []action.Provider {
	return []action.Provider{
		&System{ServerID: serverID},
		&Player{},
	}
}
