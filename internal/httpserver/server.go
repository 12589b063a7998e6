package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/game-server/internal/config"
)

// Server HTTP 服务封装（健康检查、指标、管理接口）
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// New 创建 Gin 引擎与 HTTP Server；路由由调用方通过 Engine 注册
func New(cfg cfgpkg.HTTPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(logger))

	return &Server{
		engine: r,
		logger: logger,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Engine 路由注册入口
func (s *Server) Engine() *gin.Engine { return s.engine }

// Handler 底层 http.Handler（测试使用）
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// MountMetrics 挂载 Prometheus 指标
func (s *Server) MountMetrics(path string, h http.Handler) {
	if h == nil {
		return
	}
	if path == "" {
		path = "/metrics"
	}
	s.engine.GET(path, gin.WrapH(h))
}

// Start 启动 HTTP 服务（阻塞），正常关闭时返回 nil
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve 在给定监听器上服务（阻塞）
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// accessLog 访问日志；探针与指标拉取只记 Debug
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch c.FullPath() {
		case "/healthz", "/readyz", "/metrics":
			logger.Debug("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}
