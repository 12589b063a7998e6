package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/game-server/internal/config"
	"github.com/taoyao-code/game-server/internal/gateway"
	"github.com/taoyao-code/game-server/internal/metrics"
	"github.com/taoyao-code/game-server/internal/tcpserver"
)

// NewTCPGateway 创建 TCP 网关：限流、指标回调与请求帧处理。
// 关闭时先 Shutdown 服务器，再调用返回的 Handler.Wait 等待在途请求。
func NewTCPGateway(
	tcpCfg cfgpkg.TCPConfig,
	gwCfg cfgpkg.GatewayConfig,
	d gateway.Dispatcher,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) (*tcpserver.Server, *gateway.Handler, *tcpserver.ConnectionLimiter) {
	srv := tcpserver.New(tcpCfg, logger)

	connLimiter := tcpserver.NewConnectionLimiter(gwCfg.MaxConnections, gwCfg.AcquireTimeout)
	var rateLimiter *tcpserver.RateLimiter
	if gwCfg.RatePerSec > 0 {
		rateLimiter = tcpserver.NewRateLimiter(gwCfg.RatePerSec, gwCfg.Burst)
	}
	srv.SetLimiters(connLimiter, rateLimiter)

	if appm != nil {
		srv.SetMetricsCallbacks(
			func() { appm.TCPAccepted.Inc() },
			func(n int) { appm.TCPBytesReceived.Add(float64(n)) },
			func(reason string) { appm.GatewayRejected.WithLabelValues(reason).Inc() },
			func(delta int) { appm.OnlineGauge.Add(float64(delta)) },
		)
	}
	gw := gateway.NewHandler(d, gwCfg.MaxFrameBytes, appm, logger)
	srv.SetConnHandler(gw.ConnHandler())
	return srv, gw, connLimiter
}
