package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/api"
	cfgpkg "github.com/taoyao-code/game-server/internal/config"
	"github.com/taoyao-code/game-server/internal/health"
	"github.com/taoyao-code/game-server/internal/httpserver"
	"github.com/taoyao-code/game-server/internal/metrics"
)

// NewHTTPServer 创建 HTTP 服务并注册健康检查、指标与管理接口
func NewHTTPServer(
	cfg *cfgpkg.Config,
	reg *prometheus.Registry,
	agg *health.Aggregator,
	actionsH *api.ActionsHandler,
	logger *zap.Logger,
) *httpserver.Server {
	srv := httpserver.New(cfg.HTTP, logger)
	if cfg.Metrics.Enable {
		srv.MountMetrics(cfg.Metrics.Path, metrics.Handler(reg))
	}
	health.RegisterHTTPRoutes(srv.Engine(), agg)
	api.RegisterRoutes(srv.Engine(), actionsH, cfg.HTTP, logger)
	return srv
}
