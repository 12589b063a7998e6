package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/game-server/internal/config"
)

// 拒绝原因（指标标签）
const (
	RejectConnLimit = "conn_limit"
	RejectRateLimit = "rate_limit"
)

// Server TCP 网关：接受连接、限流，并把每个连接交给 connHandler 安装读回调
type Server struct {
	cfg    cfgpkg.TCPConfig
	logger *zap.Logger

	ln       net.Listener
	wg       sync.WaitGroup
	stopC    chan struct{}
	stopOnce sync.Once

	nextConnID atomic.Uint64
	conns      sync.Map // id -> *ConnContext

	connLimiter *ConnectionLimiter
	rateLimiter *RateLimiter
	connHandler func(*ConnContext)

	// 可选指标回调
	onAccept    func()
	onRecvBytes func(n int)
	onReject    func(reason string)
	onOpen      func(delta int)
}

// New 创建 TCP 网关
func New(cfg cfgpkg.TCPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger, stopC: make(chan struct{})}
}

// SetLimiters 设置连接数与接入速率限流器，nil 表示不限制
func (s *Server) SetLimiters(conn *ConnectionLimiter, rate *RateLimiter) {
	s.connLimiter, s.rateLimiter = conn, rate
}

// SetConnHandler 设置连接处理器（在连接读循环启动前调用）
func (s *Server) SetConnHandler(h func(*ConnContext)) { s.connHandler = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept func(), onRecvBytes func(int), onReject func(string), onOpen func(int)) {
	s.onAccept, s.onRecvBytes, s.onReject, s.onOpen = onAccept, onRecvBytes, onReject, onOpen
}

// Logger 网关日志器
func (s *Server) Logger() *zap.Logger { return s.logger }

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			s.logger.Warn("tcp accept error", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if s.onAccept != nil {
			s.onAccept()
		}

		if s.rateLimiter != nil && !s.rateLimiter.Allow() {
			s.reject(c, RejectRateLimit)
			continue
		}
		if s.connLimiter != nil {
			if err := s.connLimiter.Acquire(context.Background()); err != nil {
				s.reject(c, RejectConnLimit)
				continue
			}
		}

		cc := newConnContext(s, c)
		s.conns.Store(cc.ID(), cc)
		if s.onOpen != nil {
			s.onOpen(1)
		}

		s.wg.Add(1)
		go s.serve(cc)
	}
}

func (s *Server) reject(c net.Conn, reason string) {
	if s.onReject != nil {
		s.onReject(reason)
	}
	s.logger.Warn("tcp connection rejected",
		zap.String("remote_addr", c.RemoteAddr().String()),
		zap.String("reason", reason))
	_ = c.Close()
}

func (s *Server) serve(cc *ConnContext) {
	defer s.wg.Done()
	defer func() {
		s.conns.Delete(cc.ID())
		if s.connLimiter != nil {
			s.connLimiter.Release()
		}
		if s.onOpen != nil {
			s.onOpen(-1)
		}
	}()
	if s.connHandler != nil {
		s.connHandler(cc)
	}
	cc.run()
}

// Shutdown 关闭监听与全部连接，并等待连接处理退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopC) })
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.conns.Range(func(_, v any) bool {
		_ = v.(*ConnContext).Close()
		return true
	})
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
