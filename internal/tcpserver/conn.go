package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

var (
	ErrConnClosed        = errors.New("connection closed")
	ErrWriteQueueTimeout = errors.New("write queue timeout")
)

// ConnContext 为每个 TCP 连接提供读/写循环与回调能力
type ConnContext struct {
	s      *Server
	c      net.Conn
	id     uint64
	writeC chan []byte
	onRead func([]byte)

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnContext{
		s:      s,
		c:      c,
		id:     s.nextConnID.Add(1),
		writeC: make(chan []byte, 128),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID 返回连接ID（单进程唯一递增）
func (cc *ConnContext) ID() uint64 { return cc.id }

// RemoteAddr 返回远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// Server 所属网关
func (cc *ConnContext) Server() *Server { return cc.s }

// Context 连接生命周期 ctx，连接关闭时取消
func (cc *ConnContext) Context() context.Context { return cc.ctx }

// SetOnRead 安装读取回调（收到上行原始字节时触发，切片在回调返回后会被复用）
func (cc *ConnContext) SetOnRead(h func([]byte)) { cc.onRead = h }

// Write 异步写入，受写队列与写超时影响
func (cc *ConnContext) Write(b []byte) error {
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	timer := time.NewTimer(to)
	defer timer.Stop()
	select {
	case <-cc.ctx.Done():
		return ErrConnClosed
	case cc.writeC <- dup:
		return nil
	case <-timer.C:
		return ErrWriteQueueTimeout
	}
}

// Close 关闭连接；可重复调用
func (cc *ConnContext) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		cc.cancel()
		err = cc.c.Close()
	})
	return err
}

// Done 返回连接关闭通知通道
func (cc *ConnContext) Done() <-chan struct{} { return cc.ctx.Done() }

// run 启动读/写循环，阻塞直至连接结束
func (cc *ConnContext) run() {
	defer cc.Close()

	// 写循环
	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		for {
			select {
			case <-cc.ctx.Done():
				return
			case msg := <-cc.writeC:
				if cc.s.cfg.WriteTimeout > 0 {
					_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
				}
				if _, err := cc.c.Write(msg); err != nil {
					_ = cc.Close()
					return
				}
			}
		}
	}()

	// 读循环：超过 ReadTimeout 无数据视为空闲连接并关闭
	buf := make([]byte, 4096)
	for {
		if cc.s.cfg.ReadTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
		}
		n, err := cc.c.Read(buf)
		if n > 0 {
			if cc.s.onRecvBytes != nil {
				cc.s.onRecvBytes(n)
			}
			if cc.onRead != nil {
				cc.onRead(buf[:n])
			}
		}
		if err != nil {
			break
		}
	}
	_ = cc.Close()
	<-doneW
}
