package bootstrap

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/action"
	"github.com/taoyao-code/game-server/internal/actions"
	"github.com/taoyao-code/game-server/internal/api"
	"github.com/taoyao-code/game-server/internal/app"
	cfgpkg "github.com/taoyao-code/game-server/internal/config"
	"github.com/taoyao-code/game-server/internal/dispatch"
)

// shutdownTimeout 优雅关闭的最长等待时间
const shutdownTimeout = 10 * time.Second

// Run 统一启动流程，阻塞直到收到 SIGINT/SIGTERM
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, cfg, log, nil)
}

// RunContext 按依赖顺序启动各组件，ctx 取消后优雅关闭。
// extra 为内置动作之外的业务动作模块。
func RunContext(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger, extra []action.Provider) error {
	serverID := app.ServerID(cfg.App.ServerID)
	log = log.With(zap.String("server_id", serverID))
	log.Info("starting game server", zap.String("name", cfg.App.Name), zap.String("env", cfg.App.Env))

	// ========== 阶段1: 指标与动作注册表（配置错误直接终止启动）==========
	reg, appm := app.NewMetrics()

	providers := append(actions.Builtin(serverID), extra...)
	registry, err := app.NewActionRegistry(providers, appm, log)
	if err != nil {
		log.Error("action registry initialization failed", zap.Error(err))
		return err
	}

	// ========== 阶段2: Redis 分片与玩家锁 ==========
	shards, err := app.NewRedisShards(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if shards != nil {
		defer func() { _ = shards.Close() }()
	}

	locker, breaker, err := app.NewPlayerLocker(cfg.Lock, shards, appm, log)
	if err != nil {
		log.Error("player lock initialization failed", zap.Error(err))
		return err
	}

	d := dispatch.New(registry, locker,
		dispatch.WithLogger(log),
		dispatch.WithMetrics(appm),
		dispatch.WithNamespace(cfg.Lock.Namespace),
	)

	// ========== 阶段3: TCP 网关 ==========
	tcpSrv, gw, connLimiter := app.NewTCPGateway(cfg.TCP, cfg.Gateway, d, appm, log)

	// ========== 阶段4: HTTP 服务（非阻塞）==========
	agg := app.NewHealthAggregator(registry, connLimiter, breaker, shards)
	httpSrv := app.NewHTTPServer(cfg, reg, agg, api.NewActionsHandler(registry, d, log), log)

	httpErrC := make(chan error, 1)
	go func() { httpErrC <- httpSrv.Start() }()

	// ========== 阶段5: 最后启动 TCP（此时所有依赖已就绪）==========
	if err := tcpSrv.Start(); err != nil {
		log.Error("tcp server start failed", zap.Error(err))
		shutdownHTTP(httpSrv, log)
		return err
	}
	log.Info("tcp gateway started", zap.String("addr", tcpSrv.Addr().String()))
	log.Info("all services ready, waiting for connections")

	// ========== 阶段6: 等待关闭 ==========
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-httpErrC:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			runErr = err
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 先停止接入并关闭连接，再关闭 HTTP
	if err := tcpSrv.Shutdown(sctx); err != nil {
		log.Warn("tcp shutdown incomplete", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	// 在途请求结束后才能关闭 Redis 分片，否则玩家锁无法释放
	if err := gw.Wait(sctx); err != nil {
		log.Warn("in-flight requests did not finish before shutdown timeout", zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	log.Info("tcp gateway stopped")

	shutdownHTTP(httpSrv, log)
	log.Info("shutdown complete")
	return runErr
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownHTTP(s shutdowner, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
	log.Info("http server stopped")
}
